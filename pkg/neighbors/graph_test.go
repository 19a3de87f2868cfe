package neighbors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line() [][]float64 {
	return [][]float64{{0, 0}, {1, 0}, {2, 0}, {10, 0}, {11, 0}, {12, 0}}
}

func TestKNeighborsGraphSymmetric(t *testing.T) {
	g, err := KNeighborsGraph(line(), 1)
	require.NoError(t, err)

	// 0→1, 1→0 (tie with 2 broken by index), 2→1: 0-1 is mutual, 1-2 one-sided.
	assert.Equal(t, 1.0, g.Weight(0, 1))
	assert.Equal(t, 0.5, g.Weight(1, 2))
	assert.Equal(t, 0.5, g.Weight(2, 1))
	assert.False(t, g.HasEdge(0, 2))
	assert.False(t, g.HasEdge(2, 3))
	assert.Equal(t, 0.0, g.Weight(3, 3))
}

func TestComponentsAndComplete(t *testing.T) {
	X := line()
	g, err := KNeighborsGraph(X, 2)
	require.NoError(t, err)

	comps := g.Components()
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}}, comps)

	c := g.Clone()
	assert.Equal(t, 2, c.Complete(X, Euclidean))
	assert.Len(t, c.Components(), 1)
	// closest cross pair is 2-3
	assert.Equal(t, 1.0, c.Weight(2, 3))
	// the source graph is untouched
	assert.Len(t, g.Components(), 2)
	assert.Equal(t, 1, c.Complete(X, Euclidean))
}

func TestNeighborsSorted(t *testing.T) {
	g, err := KNeighborsGraph(line(), 2)
	require.NoError(t, err)
	edges := g.Neighbors(1)
	require.Len(t, edges, 2)
	assert.Equal(t, 0, edges[0].To)
	assert.Equal(t, 2, edges[1].To)
}

func TestKNeighborsGraphErrors(t *testing.T) {
	_, err := KNeighborsGraph(line(), 0)
	assert.Error(t, err)
	_, err = KNeighborsGraph(line(), 6)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	a, b := []float64{0, 0}, []float64{3, 4}
	assert.InDelta(t, 5, Euclidean(a, b), 1e-12)
	assert.InDelta(t, 7, Manhattan(a, b), 1e-12)
}
