package cluster

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOPTICSOrderingAndPurity(t *testing.T) {
	X, y := threeBlobs(40)
	o := NewOPTICS(5, 0.05, 0.1)
	require.NoError(t, o.Fit(context.Background(), X))

	require.Len(t, o.Ordering, len(X))
	seen := map[int]bool{}
	for _, p := range o.Ordering {
		assert.False(t, seen[p], "point %d ordered twice", p)
		seen[p] = true
	}
	assert.Equal(t, 0, o.Ordering[0])
	assert.True(t, math.IsInf(o.Reachability[o.Ordering[0]], 1))
	assert.Equal(t, -1, o.Predecessor[o.Ordering[0]])

	labels := o.Labels()
	require.Len(t, labels, len(X))
	assert.GreaterOrEqual(t, NumClusters(labels), 1)
	assertDense(t, labels)
	group := map[int]int{}
	for i, l := range labels {
		if l == Noise {
			continue
		}
		if g, ok := group[l]; ok {
			assert.Equal(t, g, y[i], "cluster %d mixes groups", l)
		} else {
			group[l] = y[i]
		}
	}
}

func TestOPTICSCoreDistances(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {4}}
	o := NewOPTICS(2, 0.05, 2)
	require.NoError(t, o.Fit(context.Background(), X))
	// 2nd closest, counting the point itself
	assert.Equal(t, []float64{1, 1, 1, 2}, o.CoreDistances)
	assert.Equal(t, []int{0, 1, 2, 3}, o.Ordering)
	assert.Equal(t, []int{-1, 0, 1, 2}, o.Predecessor)
	assert.Equal(t, 2.0, o.Reachability[3])
}

func TestExtendRegion(t *testing.T) {
	steep := []bool{true, false, true, false, false, false, true}
	reverse := []bool{false, false, false, false, false, false, false}
	assert.Equal(t, 2, extendRegion(steep, reverse, 0, 2))
	assert.Equal(t, 6, extendRegion(steep, reverse, 0, 3))

	reverse[1] = true
	assert.Equal(t, 0, extendRegion(steep, reverse, 0, 3))
}

func TestExtractXiLabels(t *testing.T) {
	ordering := []int{3, 0, 1, 2, 4}
	// inner cluster first, then one overlapping it which is skipped
	clusters := [][2]int{{1, 2}, {0, 4}, {3, 4}}
	labels := extractXiLabels(ordering, clusters)
	assert.Equal(t, []int{0, 0, 1, Noise, 1}, labels)
}

func TestCorrectPredecessor(t *testing.T) {
	reach := []float64{math.Inf(1), 1, 1, 1, math.Inf(1)}
	ordering := []int{0, 1, 2, 3}
	pred := []int{-1, 0, 1, 2}
	s, e, ok := correctPredecessor(reach, pred, ordering, 1, 3)
	require.True(t, ok)
	assert.Equal(t, 1, s)
	assert.Equal(t, 3, e)

	// the end descends from a point outside the range until nothing is left
	pred = []int{-1, 0, 0, 0}
	_, _, ok = correctPredecessor(reach, pred, ordering, 1, 3)
	assert.False(t, ok)
}
