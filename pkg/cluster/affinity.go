package cluster

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
)

// AffinityPropagation exchanges responsibility and availability messages
// between all pairs of points until the set of exemplars stabilizes.
type AffinityPropagation struct {
	Damping         float64
	Preference      float64
	MaxIter         int
	ConvergenceIter int
	Seed            uint64

	Exemplars []int
	NIter     int
	labels    []int
	warner
}

func NewAffinityPropagation(damping, preference float64, seed uint64) *AffinityPropagation {
	return &AffinityPropagation{
		Damping:         damping,
		Preference:      preference,
		MaxIter:         200,
		ConvergenceIter: 15,
		Seed:            seed,
		warner:          warner{name: "Affinity Propagation"},
	}
}

func (a *AffinityPropagation) Fit(ctx context.Context, X [][]float64) error {
	if a.Damping < 0.5 || a.Damping >= 1 {
		return invalid("damping must be in [0.5, 1), got %g", a.Damping)
	}
	if a.MaxIter < 1 || a.ConvergenceIter < 1 {
		return invalid("max_iter and convergence_iter must be positive")
	}
	if err := checkData(X, 1); err != nil {
		return err
	}
	n := len(X)
	if n == 1 {
		a.Exemplars, a.labels = []int{0}, []int{0}
		return nil
	}

	S := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			if i == k {
				S[i*n+k] = a.Preference
			} else {
				S[i*n+k] = -sqDist(X[i], X[k])
			}
		}
	}
	// Tiny noise breaks ties between equally good exemplars.
	r := rand.New(rand.NewPCG(a.Seed, 0x61666670726f70))
	const eps, tiny = 2.220446049250313e-16, 2.2250738585072014e-308
	for i := range S {
		S[i] += (eps*S[i] + tiny*100) * r.NormFloat64()
	}

	R := make([]float64, n*n)
	A := make([]float64, n*n)
	col := make([]float64, n)
	history := make([][]bool, a.ConvergenceIter)
	for i := range history {
		history[i] = make([]bool, n)
	}
	damp := a.Damping
	converged := false
	it := 0
	for ; it < a.MaxIter; it++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// responsibilities
		for i := 0; i < n; i++ {
			row := i * n
			first, second := math.Inf(-1), math.Inf(-1)
			arg := 0
			for k := 0; k < n; k++ {
				v := A[row+k] + S[row+k]
				if v > first {
					second, first, arg = first, v, k
				} else if v > second {
					second = v
				}
			}
			for k := 0; k < n; k++ {
				next := S[row+k] - first
				if k == arg {
					next = S[row+k] - second
				}
				R[row+k] = damp*R[row+k] + (1-damp)*next
			}
		}
		// availabilities
		clear(col)
		for i := 0; i < n; i++ {
			row := i * n
			for k := 0; k < n; k++ {
				v := R[row+k]
				if i != k && v < 0 {
					v = 0
				}
				col[k] += v
			}
		}
		for i := 0; i < n; i++ {
			row := i * n
			for k := 0; k < n; k++ {
				rp := R[row+k]
				if i != k && rp < 0 {
					rp = 0
				}
				next := col[k] - rp
				if i != k && next > 0 {
					next = 0
				}
				A[row+k] = damp*A[row+k] + (1-damp)*next
			}
		}

		E := history[it%a.ConvergenceIter]
		K := 0
		for k := 0; k < n; k++ {
			E[k] = A[k*n+k]+R[k*n+k] > 0
			if E[k] {
				K++
			}
		}
		if it >= a.ConvergenceIter {
			stable := true
			for k := 0; k < n && stable; k++ {
				sum := 0
				for _, h := range history {
					if h[k] {
						sum++
					}
				}
				stable = sum == 0 || sum == a.ConvergenceIter
			}
			if stable && K > 0 {
				converged = true
				it++
				break
			}
		}
	}
	a.NIter = it

	var exemplars []int
	for k := 0; k < n; k++ {
		if A[k*n+k]+R[k*n+k] > 0 {
			exemplars = append(exemplars, k)
		}
	}
	if len(exemplars) == 0 {
		a.warn("Affinity propagation did not converge and this model will not have any cluster centers.")
		a.Exemplars = nil
		a.labels = make([]int, n)
		for i := range a.labels {
			a.labels[i] = Noise
		}
		return nil
	}
	if !converged {
		a.warn("Affinity propagation did not converge, this model may return degenerate cluster centers and labels.")
	}

	assign := func() []int {
		c := make([]int, n)
		for i := 0; i < n; i++ {
			best, bestV := 0, math.Inf(-1)
			for e, k := range exemplars {
				if v := S[i*n+k]; v > bestV {
					best, bestV = e, v
				}
			}
			c[i] = best
		}
		for e, k := range exemplars {
			c[k] = e
		}
		return c
	}
	c := assign()
	// Refine: each cluster's exemplar becomes the member with the highest
	// total similarity to the rest of the cluster.
	for e := range exemplars {
		var members []int
		for i, ci := range c {
			if ci == e {
				members = append(members, i)
			}
		}
		best, bestV := exemplars[e], math.Inf(-1)
		for _, j := range members {
			var s float64
			for _, i := range members {
				s += S[i*n+j]
			}
			if s > bestV {
				best, bestV = j, s
			}
		}
		exemplars[e] = best
	}
	c = assign()

	// Label ids follow exemplar index order.
	order := make([]int, len(exemplars))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool { return exemplars[order[x]] < exemplars[order[y]] })
	rank := make([]int, len(exemplars))
	sorted := make([]int, len(exemplars))
	for pos, e := range order {
		rank[e] = pos
		sorted[pos] = exemplars[e]
	}
	a.labels = make([]int, n)
	for i, ci := range c {
		a.labels[i] = rank[ci]
	}
	a.Exemplars = sorted
	return nil
}

func (a *AffinityPropagation) Labels() []int { return a.labels }
