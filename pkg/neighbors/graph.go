// Package neighbors builds k-nearest-neighbor connectivity graphs.
package neighbors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

type Metric func(a, b []float64) float64

var (
	Euclidean Metric = func(a, b []float64) float64 { return floats.Distance(a, b, 2) }
	Manhattan Metric = func(a, b []float64) float64 { return floats.Distance(a, b, 1) }
)

// Graph is an undirected weighted adjacency over point indices.
type Graph struct {
	g *simple.WeightedUndirectedGraph
	n int
}

type Edge struct {
	To     int
	Weight float64
}

func NewGraph(n int) *Graph {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	return &Graph{g: g, n: n}
}

// KNeighborsGraph links every point to its k nearest neighbors (itself
// excluded) and symmetrizes the result as 0.5*(A + Aᵀ).
func KNeighborsGraph(X [][]float64, k int) (*Graph, error) {
	n := len(X)
	if k < 1 {
		return nil, fmt.Errorf("n_neighbors must be at least 1, got %d", k)
	}
	if k >= n {
		return nil, fmt.Errorf("n_neighbors (%d) must be smaller than the number of points (%d)", k, n)
	}
	g := NewGraph(n)
	for i := range X {
		for _, j := range Nearest(X, i, k, Euclidean) {
			g.add(i, j, 0.5)
		}
	}
	return g, nil
}

// Nearest returns the indices of the k points closest to X[i], nearest
// first, ties broken by index.
func Nearest(X [][]float64, i, k int, metric Metric) []int {
	type cand struct {
		j int
		d float64
	}
	cands := make([]cand, 0, len(X)-1)
	for j := range X {
		if j == i {
			continue
		}
		cands = append(cands, cand{j, metric(X[i], X[j])})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].d != cands[b].d {
			return cands[a].d < cands[b].d
		}
		return cands[a].j < cands[b].j
	})
	if k > len(cands) {
		k = len(cands)
	}
	out := make([]int, k)
	for a := 0; a < k; a++ {
		out[a] = cands[a].j
	}
	return out
}

func (g *Graph) add(i, j int, w float64) {
	if old, ok := g.g.Weight(int64(i), int64(j)); ok {
		w += old
	}
	g.SetEdge(i, j, w)
}

func (g *Graph) SetEdge(i, j int, w float64) {
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(i), simple.Node(j), w))
}

func (g *Graph) Len() int { return g.n }

func (g *Graph) HasEdge(i, j int) bool {
	return i != j && g.g.HasEdgeBetween(int64(i), int64(j))
}

func (g *Graph) Weight(i, j int) float64 {
	if i == j {
		return 0
	}
	w, _ := g.g.Weight(int64(i), int64(j))
	return w
}

// Neighbors returns the edges of i ordered by neighbor index.
func (g *Graph) Neighbors(i int) []Edge {
	it := g.g.From(int64(i))
	out := make([]Edge, 0, it.Len())
	for it.Next() {
		j := it.Node().ID()
		w, _ := g.g.Weight(int64(i), j)
		out = append(out, Edge{To: int(j), Weight: w})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].To < out[b].To })
	return out
}

// Components lists connected components, each sorted, ordered by their
// smallest member.
func (g *Graph) Components() [][]int {
	comps := topo.ConnectedComponents(g.g)
	out := make([][]int, len(comps))
	for c, nodes := range comps {
		ids := make([]int, len(nodes))
		for a, nd := range nodes {
			ids[a] = int(nd.ID())
		}
		sort.Ints(ids)
		out[c] = ids
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

// Complete joins every pair of components through their closest points so
// that the graph becomes connected. It returns the number of components the
// graph had before completion.
func (g *Graph) Complete(X [][]float64, metric Metric) int {
	comps := g.Components()
	if len(comps) <= 1 {
		return len(comps)
	}
	for a := 1; a < len(comps); a++ {
		for b := 0; b < a; b++ {
			bi, bj, best := -1, -1, math.Inf(1)
			for _, i := range comps[a] {
				for _, j := range comps[b] {
					if d := metric(X[i], X[j]); d < best {
						bi, bj, best = i, j, d
					}
				}
			}
			g.SetEdge(bi, bj, 1)
		}
	}
	return len(comps)
}

// Clone returns an independent copy, so completion does not leak into a
// graph shared between strategies.
func (g *Graph) Clone() *Graph {
	c := NewGraph(g.n)
	for i := 0; i < g.n; i++ {
		for _, e := range g.Neighbors(i) {
			if e.To > i {
				c.SetEdge(i, e.To, e.Weight)
			}
		}
	}
	return c
}
