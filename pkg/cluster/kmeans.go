package cluster

import (
	"context"
	"math"
	"math/rand/v2"
)

// KMeans is Lloyd's algorithm with k-means++ seeding. It backs label
// assignment for spectral clustering and the mixture initialization.
type KMeans struct {
	K       int
	MaxIter int
	Tol     float64
	NInit   int
	Seed    uint64

	Centroids [][]float64
	Inertia   float64
	labels    []int
}

func NewKMeans(k int, seed uint64) *KMeans {
	return &KMeans{K: k, MaxIter: 300, Tol: 1e-4, NInit: 1, Seed: seed}
}

func (m *KMeans) Fit(ctx context.Context, X [][]float64) error {
	if m.K < 1 {
		return invalid("n_clusters must be at least 1, got %d", m.K)
	}
	if err := checkData(X, m.K); err != nil {
		return err
	}
	nInit := max(m.NInit, 1)
	r := rand.New(rand.NewPCG(m.Seed, 0x6b6d65616e73))
	tol := m.Tol * meanVariance(X)
	m.Inertia = math.Inf(1)
	for run := 0; run < nInit; run++ {
		centers := kmeansPlusPlus(X, m.K, r)
		labels, inertia, err := lloyd(ctx, X, centers, max(m.MaxIter, 1), tol)
		if err != nil {
			return err
		}
		if inertia < m.Inertia {
			m.Centroids, m.labels, m.Inertia = centers, labels, inertia
		}
	}
	return nil
}

func (m *KMeans) Labels() []int { return m.labels }

func (m *KMeans) Predict(X [][]float64) ([]int, error) {
	return predictNearest(X, m.Centroids)
}

func lloyd(ctx context.Context, X, centers [][]float64, maxIter int, tol float64) ([]int, float64, error) {
	k, d := len(centers), len(X[0])
	labels := make([]int, len(X))
	var inertia float64
	for it := 0; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		inertia = 0
		for i, p := range X {
			c, dist := nearest(p, centers)
			labels[i] = c
			inertia += dist
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, d)
		}
		for i, p := range X {
			c := labels[i]
			counts[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}
		var shift float64
		for c := range centers {
			if counts[c] == 0 {
				// Reseed an empty cluster on the point worst served by its center.
				far := farthestPoint(X, labels, centers)
				copy(sums[c], X[far])
				counts[c] = 1
				labels[far] = c
			}
			next := make([]float64, d)
			for j := range next {
				next[j] = sums[c][j] / float64(counts[c])
			}
			shift += sqDist(next, centers[c])
			centers[c] = next
		}
		if shift <= tol {
			break
		}
	}
	inertia = 0
	for i, p := range X {
		c, dist := nearest(p, centers)
		labels[i] = c
		inertia += dist
	}
	return labels, inertia, nil
}

func farthestPoint(X [][]float64, labels []int, centers [][]float64) int {
	far, farD := 0, -1.0
	for i, p := range X {
		if d := sqDist(p, centers[labels[i]]); d > farD {
			far, farD = i, d
		}
	}
	return far
}

func kmeansPlusPlus(X [][]float64, k int, r *rand.Rand) [][]float64 {
	n := len(X)
	centers := make([][]float64, 0, k)
	first := X[r.IntN(n)]
	centers = append(centers, append([]float64(nil), first...))
	closest := make([]float64, n)
	for i, p := range X {
		closest[i] = sqDist(p, first)
	}
	for len(centers) < k {
		var total float64
		for _, d := range closest {
			total += d
		}
		idx := 0
		if total > 0 {
			target := r.Float64() * total
			for i, d := range closest {
				target -= d
				if target <= 0 {
					idx = i
					break
				}
				idx = i
			}
		} else {
			idx = r.IntN(n)
		}
		c := append([]float64(nil), X[idx]...)
		centers = append(centers, c)
		for i, p := range X {
			if d := sqDist(p, c); d < closest[i] {
				closest[i] = d
			}
		}
	}
	return centers
}

func meanVariance(X [][]float64) float64 {
	d := len(X[0])
	n := float64(len(X))
	var total float64
	for j := 0; j < d; j++ {
		var s, ss float64
		for _, p := range X {
			s += p[j]
			ss += p[j] * p[j]
		}
		mean := s / n
		total += ss/n - mean*mean
	}
	return total / float64(d)
}

// MiniBatchKMeans updates centers from random batches instead of the
// whole data set on every step.
type MiniBatchKMeans struct {
	K                int
	BatchSize        int
	MaxIter          int
	MaxNoImprovement int
	Seed             uint64

	Centroids [][]float64
}

func NewMiniBatchKMeans(k int, seed uint64) *MiniBatchKMeans {
	return &MiniBatchKMeans{
		K:                k,
		BatchSize:        1024,
		MaxIter:          100,
		MaxNoImprovement: 10,
		Seed:             seed,
	}
}

func (m *MiniBatchKMeans) Fit(ctx context.Context, X [][]float64) error {
	if m.K < 1 {
		return invalid("n_clusters must be at least 1, got %d", m.K)
	}
	if m.BatchSize < 1 {
		return invalid("batch_size must be at least 1, got %d", m.BatchSize)
	}
	if err := checkData(X, m.K); err != nil {
		return err
	}
	n, d := len(X), len(X[0])
	r := rand.New(rand.NewPCG(m.Seed, 0x6d696e6962617463))
	batch := min(m.BatchSize, n)

	// Seed from a random subset of three batches, as large as the data allows.
	initSize := min(3*batch, n)
	if initSize < m.K {
		initSize = n
	}
	subset := make([][]float64, initSize)
	for i, idx := range r.Perm(n)[:initSize] {
		subset[i] = X[idx]
	}
	centers := kmeansPlusPlus(subset, m.K, r)
	counts := make([]float64, m.K)

	steps := (m.MaxIter*n + batch - 1) / batch
	alpha := math.Min(float64(batch)*2/float64(n+1), 1)
	ewa, best := math.NaN(), math.Inf(1)
	stale := 0
	sums := make([][]float64, m.K)
	for c := range sums {
		sums[c] = make([]float64, d)
	}
	hits := make([]float64, m.K)
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for c := range sums {
			clear(sums[c])
			hits[c] = 0
		}
		var inertia float64
		for b := 0; b < batch; b++ {
			p := X[r.IntN(n)]
			c, dist := nearest(p, centers)
			inertia += dist
			hits[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}
		for c := range centers {
			if hits[c] == 0 {
				continue
			}
			counts[c] += hits[c]
			for j := range centers[c] {
				centers[c][j] += (sums[c][j] - hits[c]*centers[c][j]) / counts[c]
			}
		}

		inertia /= float64(batch)
		if math.IsNaN(ewa) {
			ewa = inertia
		} else {
			ewa = ewa*(1-alpha) + inertia*alpha
		}
		if ewa < best {
			best, stale = ewa, 0
			continue
		}
		stale++
		if m.MaxNoImprovement > 0 && stale >= m.MaxNoImprovement {
			break
		}
	}
	m.Centroids = centers
	return nil
}

func (m *MiniBatchKMeans) Predict(X [][]float64) ([]int, error) {
	return predictNearest(X, m.Centroids)
}
