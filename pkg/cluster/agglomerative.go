package cluster

import (
	"container/heap"
	"context"
	"sort"

	"github.com/oarkflow/clusterviz/pkg/neighbors"
)

type Linkage int

const (
	Ward Linkage = iota
	Average
)

func (l Linkage) String() string {
	switch l {
	case Ward:
		return "ward"
	case Average:
		return "average"
	}
	return "unknown"
}

// Agglomerative merges clusters bottom up along the edges of a connectivity
// graph until K clusters remain. A nil graph allows every pair to merge.
type Agglomerative struct {
	K            int
	Linkage      Linkage
	Metric       neighbors.Metric
	Connectivity *neighbors.Graph

	labels []int
	warner
}

// NewWard builds the ward linkage variant; ward distances are euclidean.
func NewWard(k int, connectivity *neighbors.Graph) *Agglomerative {
	return &Agglomerative{
		K:            k,
		Linkage:      Ward,
		Metric:       neighbors.Euclidean,
		Connectivity: connectivity,
		warner:       warner{name: "Ward"},
	}
}

func NewAgglomerative(k int, linkage Linkage, metric neighbors.Metric, connectivity *neighbors.Graph) *Agglomerative {
	if metric == nil {
		metric = neighbors.Euclidean
	}
	return &Agglomerative{
		K:            k,
		Linkage:      linkage,
		Metric:       metric,
		Connectivity: connectivity,
		warner:       warner{name: "Agglomerative Clustering"},
	}
}

type merge struct {
	d    float64
	a, b int
}

type mergeHeap []merge

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].d != h[j].d {
		return h[i].d < h[j].d
	}
	if h[i].a != h[j].a {
		return h[i].a < h[j].a
	}
	return h[i].b < h[j].b
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(merge)) }
func (h *mergeHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

func (a *Agglomerative) Fit(ctx context.Context, X [][]float64) error {
	if a.K < 1 {
		return invalid("n_clusters must be at least 1, got %d", a.K)
	}
	if a.Linkage != Ward && a.Linkage != Average {
		return invalid("unknown linkage %d", a.Linkage)
	}
	if err := checkData(X, a.K); err != nil {
		return err
	}
	n := len(X)
	metric := a.Metric
	if metric == nil || a.Linkage == Ward {
		metric = neighbors.Euclidean
	}

	total := 2*n - 1
	size := make([]float64, total)
	centroid := make([][]float64, total)
	parent := make([]int, total)
	active := make([]bool, total)
	adj := make([]map[int]float64, total)
	for i := 0; i < n; i++ {
		size[i] = 1
		centroid[i] = X[i]
		parent[i] = -1
		active[i] = true
		adj[i] = map[int]float64{}
	}

	dist := func(i, j int) float64 {
		if a.Linkage == Ward {
			return size[i] * size[j] / (size[i] + size[j]) * sqDist(centroid[i], centroid[j])
		}
		return metric(X[i], X[j])
	}

	if a.Connectivity != nil {
		if a.Connectivity.Len() != n {
			return invalid("connectivity has %d nodes, data has %d rows", a.Connectivity.Len(), n)
		}
		g := a.Connectivity.Clone()
		if c := g.Complete(X, metric); c > 1 {
			a.warn("the number of connected components of the connectivity matrix is %d > 1. Completing it to avoid stopping the tree early.", c)
		}
		for i := 0; i < n; i++ {
			for _, e := range g.Neighbors(i) {
				adj[i][e.To] = 0
			}
		}
	} else {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i != j {
					adj[i][j] = 0
				}
			}
		}
	}

	h := &mergeHeap{}
	for i := 0; i < n; i++ {
		for j := range adj[i] {
			d := dist(i, j)
			adj[i][j] = d
			if i < j {
				*h = append(*h, merge{d: d, a: i, b: j})
			}
		}
	}
	heap.Init(h)

	clusters := n
	next := n
	for clusters > a.K && h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := heap.Pop(h).(merge)
		if !active[m.a] || !active[m.b] {
			continue
		}
		k := next
		next++
		active[m.a], active[m.b] = false, false
		parent[m.a], parent[m.b] = k, k
		parent[k] = -1
		active[k] = true
		size[k] = size[m.a] + size[m.b]
		c := make([]float64, len(X[0]))
		for j := range c {
			c[j] = (size[m.a]*centroid[m.a][j] + size[m.b]*centroid[m.b][j]) / size[k]
		}
		centroid[k] = c
		clusters--

		adj[k] = map[int]float64{}
		for _, side := range [2]int{m.a, m.b} {
			for nb := range adj[side] {
				if nb == m.a || nb == m.b || !active[nb] {
					continue
				}
				if _, done := adj[k][nb]; done {
					continue
				}
				var d float64
				if a.Linkage == Ward {
					d = dist(k, nb)
				} else {
					d = averageMerge(adj[m.a], adj[m.b], nb, size[m.a], size[m.b])
				}
				adj[k][nb] = d
				adj[nb][k] = d
				delete(adj[nb], m.a)
				delete(adj[nb], m.b)
				heap.Push(h, merge{d: d, a: nb, b: k})
			}
		}
		adj[m.a], adj[m.b] = nil, nil
	}

	var roots []int
	for id := 0; id < next; id++ {
		if active[id] {
			roots = append(roots, id)
		}
	}
	sort.Ints(roots)
	rootLabel := make(map[int]int, len(roots))
	for l, r := range roots {
		rootLabel[r] = l
	}
	a.labels = make([]int, n)
	for i := 0; i < n; i++ {
		r := i
		for parent[r] != -1 {
			r = parent[r]
		}
		a.labels[i] = rootLabel[r]
	}
	return nil
}

func (a *Agglomerative) Labels() []int { return a.labels }

// averageMerge combines the edge lengths of two merged clusters towards nb,
// weighting by cluster size when both had an edge and keeping the single
// edge otherwise.
func averageMerge(da, db map[int]float64, nb int, na, nbSize float64) float64 {
	x, okA := da[nb]
	y, okB := db[nb]
	switch {
	case okA && okB:
		return (na*x + nbSize*y) / (na + nbSize)
	case okA:
		return x
	default:
		return y
	}
}
