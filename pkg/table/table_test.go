package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Table {
	t.Helper()
	tb, err := New(
		[][]float64{{1.5, -2}, {0.125, 3}, {-7.25, 0}},
		[]int{0, 1, 2},
		[][]float64{{0.1, -0.2}, {0.3, 0.4}, {-0.5, 0.6}},
	)
	require.NoError(t, err)
	return tb
}

func TestWriteReadRoundTrip(t *testing.T) {
	tb := sample(t)
	require.NoError(t, tb.AddLabels("DBSCAN", []int{0, 0, -1}))
	require.NoError(t, tb.AddLabels("Ward", []int{1, 0, 2}))

	var buf bytes.Buffer
	require.NoError(t, tb.WriteCSV(&buf))
	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, "index,x0,x1,y,x0_s,x1_s,DBSCAN,Ward", header)

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Len())
	assert.Equal(t, []string{"DBSCAN", "Ward"}, back.LabelColumns())
	assert.Equal(t, tb.Rows(), back.Rows())
	col, ok := back.Column("DBSCAN")
	require.True(t, ok)
	assert.Equal(t, []string{"0", "0", "-1"}, col)
}

func TestAddLabelsRejects(t *testing.T) {
	tb := sample(t)
	assert.Error(t, tb.AddLabels("x0", []int{0, 0, 0}))
	assert.Error(t, tb.AddLabels("short", []int{0}))
	assert.Error(t, tb.AddLabels("", []int{0, 0, 0}))
	require.NoError(t, tb.AddLabels("ok", []int{0, 0, 0}))
	assert.Error(t, tb.AddLabels("ok", []int{0, 0, 0}))
	assert.Equal(t, []string{"ok"}, tb.LabelColumns())
}

func TestReadUnnamedIndex(t *testing.T) {
	in := ",x0,x1,y,x0_s,x1_s,MeanShift\n0,1,2,0,0.5,0.5,0\n1,3,4,1,-0.5,-0.5,1\n"
	tb, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "index", tb.Names()[0])
	assert.Equal(t, []string{"MeanShift"}, tb.LabelColumns())
	assert.Equal(t, Row{Index: 1, X0: 3, X1: 4, Y: 1, X0s: -0.5, X1s: -0.5}, tb.Rows()[1])
}

func TestReadMalformed(t *testing.T) {
	for name, in := range map[string]string{
		"few columns":  "index,x0,x1\n0,1,2\n",
		"missing y":    "index,x0,x1,z,x0_s,x1_s\n0,1,2,0,0,0\n",
		"non numeric":  "index,x0,x1,y,x0_s,x1_s\n0,abc,2,0,0,0\n",
		"header only":  "index,x0,x1,y,x0_s,x1_s\n",
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestWriteFileCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.csv")
	tb := sample(t)
	require.NoError(t, tb.WriteFile(path))
	require.NoError(t, tb.AddLabels("BIRCH", []int{2, 1, 0}))
	require.NoError(t, tb.WriteFile(path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BIRCH"}, back.LabelColumns())

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = New([][]float64{{1, 2}}, []int{0, 1}, [][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrMalformed)
}
