package cluster

import "context"

// DBSCAN grows clusters from core points, those with at least MinSamples
// points (themselves included) within Eps. Points reachable from no core
// point are Noise.
type DBSCAN struct {
	Eps        float64
	MinSamples int

	Core   []bool
	labels []int
}

func NewDBSCAN(eps float64, minSamples int) *DBSCAN {
	return &DBSCAN{Eps: eps, MinSamples: minSamples}
}

func (d *DBSCAN) Fit(ctx context.Context, X [][]float64) error {
	if d.Eps <= 0 {
		return invalid("eps must be positive, got %g", d.Eps)
	}
	if d.MinSamples < 1 {
		return invalid("min_samples must be at least 1, got %d", d.MinSamples)
	}
	if err := checkData(X, 1); err != nil {
		return err
	}
	n := len(X)
	eps2 := d.Eps * d.Eps
	hood := make([][]int, n)
	d.Core = make([]bool, n)
	for i := range X {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for j := range X {
			if sqDist(X[i], X[j]) <= eps2 {
				hood[i] = append(hood[i], j)
			}
		}
		d.Core[i] = len(hood[i]) >= d.MinSamples
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	id := 0
	var stack []int
	for i := 0; i < n; i++ {
		if labels[i] != Noise || !d.Core[i] {
			continue
		}
		labels[i] = id
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !d.Core[p] {
				continue
			}
			for _, q := range hood[p] {
				if labels[q] == Noise {
					labels[q] = id
					stack = append(stack, q)
				}
			}
		}
		id++
	}
	d.labels = labels
	return nil
}

func (d *DBSCAN) Labels() []int { return d.labels }
