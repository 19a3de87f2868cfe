package cluster

import (
	"context"

	"gonum.org/v1/gonum/floats"
)

// Birch summarizes the data in a clustering feature tree and clusters the
// leaf subcluster centroids with an unstructured ward step.
type Birch struct {
	Threshold       float64
	BranchingFactor int
	K               int

	SubclusterCenters [][]float64
	SubclusterLabels  []int
	warner
}

func NewBirch(threshold float64, branchingFactor, k int) *Birch {
	return &Birch{
		Threshold:       threshold,
		BranchingFactor: branchingFactor,
		K:               k,
		warner:          warner{name: "BIRCH"},
	}
}

// cfEntry is a clustering feature: count, linear sum and squared sum of
// the points it absorbed. Non-leaf entries own a child node.
type cfEntry struct {
	n        float64
	ls       []float64
	ss       float64
	centroid []float64
	child    *cfNode
}

func newCFEntry(p []float64) *cfEntry {
	ls := append([]float64(nil), p...)
	return &cfEntry{n: 1, ls: ls, ss: floats.Dot(p, p), centroid: append([]float64(nil), p...)}
}

func (e *cfEntry) absorb(o *cfEntry) {
	if e.ls == nil {
		e.ls = make([]float64, len(o.ls))
	}
	e.n += o.n
	floats.Add(e.ls, o.ls)
	e.ss += o.ss
	e.centroid = make([]float64, len(e.ls))
	floats.ScaleTo(e.centroid, 1/e.n, e.ls)
}

// tryMerge absorbs o when the merged radius stays within threshold.
func (e *cfEntry) tryMerge(o *cfEntry, threshold float64) bool {
	n := e.n + o.n
	ls := make([]float64, len(e.ls))
	floats.AddTo(ls, e.ls, o.ls)
	c := make([]float64, len(ls))
	floats.ScaleTo(c, 1/n, ls)
	sqRadius := (e.ss+o.ss)/n - floats.Dot(c, c)
	if sqRadius > threshold*threshold {
		return false
	}
	e.n, e.ls, e.ss, e.centroid = n, ls, e.ss+o.ss, c
	return true
}

type cfNode struct {
	leaf       bool
	entries    []*cfEntry
	prev, next *cfNode
}

type cfTree struct {
	threshold float64
	branching int
	root      *cfNode
	// head precedes the first leaf.
	head *cfNode
}

// insert places e in the subtree of node and reports whether node now has
// more than branching entries and must be split by its parent.
func (t *cfTree) insert(node *cfNode, e *cfEntry) bool {
	if len(node.entries) == 0 {
		node.entries = append(node.entries, e)
		return false
	}
	closest, _ := nearest(e.centroid, centroidsOf(node))
	c := node.entries[closest]
	if c.child != nil {
		if !t.insert(c.child, e) {
			c.absorb(e)
			return false
		}
		a, b := t.split(c.child)
		node.entries[closest] = a
		node.entries = append(node.entries, b)
		return len(node.entries) > t.branching
	}
	if c.tryMerge(e, t.threshold) {
		return false
	}
	node.entries = append(node.entries, e)
	return len(node.entries) > t.branching
}

// split divides node around its two farthest entries into two new nodes
// and returns the entries summarizing them.
func (t *cfTree) split(node *cfNode) (*cfEntry, *cfEntry) {
	n1 := &cfNode{leaf: node.leaf}
	n2 := &cfNode{leaf: node.leaf}
	e1 := &cfEntry{child: n1}
	e2 := &cfEntry{child: n2}
	if node.leaf {
		if node.prev != nil {
			node.prev.next = n1
		}
		n1.prev, n1.next = node.prev, n2
		n2.prev, n2.next = n1, node.next
		if node.next != nil {
			node.next.prev = n2
		}
	}
	fa, fb, far := 0, 0, -1.0
	for i, a := range node.entries {
		for j, b := range node.entries {
			if d := sqDist(a.centroid, b.centroid); d > far {
				fa, fb, far = i, j, d
			}
		}
	}
	for i, ent := range node.entries {
		toFirst := sqDist(ent.centroid, node.entries[fa].centroid) < sqDist(ent.centroid, node.entries[fb].centroid)
		if i == fa {
			toFirst = true
		}
		if toFirst {
			n1.entries = append(n1.entries, ent)
			e1.absorb(ent)
		} else {
			n2.entries = append(n2.entries, ent)
			e2.absorb(ent)
		}
	}
	return e1, e2
}

func centroidsOf(node *cfNode) [][]float64 {
	out := make([][]float64, len(node.entries))
	for i, e := range node.entries {
		out[i] = e.centroid
	}
	return out
}

func (b *Birch) Fit(ctx context.Context, X [][]float64) error {
	if b.Threshold <= 0 {
		return invalid("threshold must be positive, got %g", b.Threshold)
	}
	if b.BranchingFactor < 2 {
		return invalid("branching_factor must be at least 2, got %d", b.BranchingFactor)
	}
	if b.K < 1 {
		return invalid("n_clusters must be at least 1, got %d", b.K)
	}
	if err := checkData(X, 1); err != nil {
		return err
	}
	t := &cfTree{threshold: b.Threshold, branching: b.BranchingFactor}
	t.root = &cfNode{leaf: true}
	t.head = &cfNode{leaf: true, next: t.root}
	t.root.prev = t.head
	for i, p := range X {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if t.insert(t.root, newCFEntry(p)) {
			e1, e2 := t.split(t.root)
			t.root = &cfNode{entries: []*cfEntry{e1, e2}}
		}
	}

	b.SubclusterCenters = nil
	for leaf := t.head.next; leaf != nil; leaf = leaf.next {
		b.SubclusterCenters = append(b.SubclusterCenters, centroidsOf(leaf)...)
	}
	if len(b.SubclusterCenters) < b.K {
		b.warn("Number of subclusters found (%d) by BIRCH is less than (%d). Decrease the threshold.", len(b.SubclusterCenters), b.K)
		b.SubclusterLabels = make([]int, len(b.SubclusterCenters))
		for i := range b.SubclusterLabels {
			b.SubclusterLabels[i] = i
		}
		return nil
	}
	global := NewAgglomerative(b.K, Ward, nil, nil)
	if err := global.Fit(ctx, b.SubclusterCenters); err != nil {
		return err
	}
	b.SubclusterLabels = global.Labels()
	return nil
}

// Predict labels each point with the global label of its nearest leaf
// subcluster.
func (b *Birch) Predict(X [][]float64) ([]int, error) {
	idx, err := predictNearest(X, b.SubclusterCenters)
	if err != nil {
		return nil, err
	}
	for i, s := range idx {
		idx[i] = b.SubclusterLabels[s]
	}
	return idx, nil
}
