package cluster

import (
	"context"
	"math"
	"sort"
)

// EstimateBandwidth averages, over all points, the distance to the
// quantile*n nearest point (the point itself counts as its first neighbor).
func EstimateBandwidth(X [][]float64, quantile float64) (float64, error) {
	if quantile <= 0 || quantile > 1 {
		return 0, invalid("quantile must be in (0, 1], got %g", quantile)
	}
	if err := checkData(X, 1); err != nil {
		return 0, err
	}
	n := len(X)
	k := max(int(float64(n)*quantile), 1)
	dists := make([]float64, n)
	var total float64
	for i := range X {
		for j := range X {
			dists[j] = sqDist(X[i], X[j])
		}
		sort.Float64s(dists)
		total += math.Sqrt(dists[k-1])
	}
	return total / float64(n), nil
}

// MeanShift climbs a flat kernel density estimate from a grid of seeds and
// merges the resulting modes that lie within one bandwidth.
type MeanShift struct {
	Bandwidth  float64
	BinSeeding bool
	MinBinFreq int
	MaxIter    int
	ClusterAll bool
	Centers    [][]float64
	labels     []int
	warner
}

func NewMeanShift(bandwidth float64, binSeeding bool) *MeanShift {
	return &MeanShift{
		Bandwidth:  bandwidth,
		BinSeeding: binSeeding,
		MinBinFreq: 1,
		MaxIter:    300,
		ClusterAll: true,
		warner:     warner{name: "MeanShift"},
	}
}

func (m *MeanShift) Fit(ctx context.Context, X [][]float64) error {
	if m.Bandwidth <= 0 {
		return invalid("bandwidth must be positive, got %g", m.Bandwidth)
	}
	if err := checkData(X, 1); err != nil {
		return err
	}
	bw := m.Bandwidth
	bw2 := bw * bw
	seeds := X
	if m.BinSeeding {
		seeds = m.binSeeds(X)
	}

	type mode struct {
		center    []float64
		intensity int
	}
	modes := map[string]*mode{}
	stopThresh := 1e-3 * bw
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return err
		}
		center := append([]float64(nil), seed...)
		within := 0
		for it := 0; it < m.MaxIter; it++ {
			next := make([]float64, len(center))
			within = 0
			for _, p := range X {
				if sqDist(p, center) <= bw2 {
					within++
					for j, v := range p {
						next[j] += v
					}
				}
			}
			if within == 0 {
				break
			}
			for j := range next {
				next[j] /= float64(within)
			}
			moved := math.Sqrt(sqDist(next, center))
			center = next
			if moved <= stopThresh {
				break
			}
		}
		if within == 0 {
			continue
		}
		key := coordKey(center)
		if _, ok := modes[key]; !ok {
			modes[key] = &mode{center: center, intensity: within}
		}
	}
	if len(modes) == 0 {
		return invalid("no point within bandwidth %g of any seed; try a larger bandwidth", bw)
	}

	sorted := make([]*mode, 0, len(modes))
	for _, md := range modes {
		sorted = append(sorted, md)
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].intensity != sorted[b].intensity {
			return sorted[a].intensity > sorted[b].intensity
		}
		return lexGreater(sorted[a].center, sorted[b].center)
	})
	unique := make([]bool, len(sorted))
	for i := range unique {
		unique[i] = true
	}
	for i, md := range sorted {
		if !unique[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if sqDist(md.center, sorted[j].center) < bw2 {
				unique[j] = false
			}
		}
	}
	m.Centers = m.Centers[:0]
	for i, md := range sorted {
		if unique[i] {
			m.Centers = append(m.Centers, md.center)
		}
	}

	m.labels = make([]int, len(X))
	for i, p := range X {
		c, d := nearest(p, m.Centers)
		if !m.ClusterAll && d > bw2 {
			c = Noise
		}
		m.labels[i] = c
	}
	return nil
}

func (m *MeanShift) Labels() []int { return m.labels }

func (m *MeanShift) Predict(X [][]float64) ([]int, error) {
	return predictNearest(X, m.Centers)
}

// binSeeds snaps points onto a grid of bandwidth-sized bins and keeps the
// bins holding at least MinBinFreq points.
func (m *MeanShift) binSeeds(X [][]float64) [][]float64 {
	counts := map[string]int{}
	bins := map[string][]float64{}
	var order []string
	for _, p := range X {
		b := make([]float64, len(p))
		for j, v := range p {
			b[j] = math.RoundToEven(v / m.Bandwidth)
		}
		key := coordKey(b)
		if _, ok := bins[key]; !ok {
			bins[key] = b
			order = append(order, key)
		}
		counts[key]++
	}
	seeds := make([][]float64, 0, len(order))
	for _, key := range order {
		if counts[key] < max(m.MinBinFreq, 1) {
			continue
		}
		s := make([]float64, len(bins[key]))
		for j, v := range bins[key] {
			s[j] = v * m.Bandwidth
		}
		seeds = append(seeds, s)
	}
	if len(seeds) == len(X) {
		m.warn("Binning data failed with provided bin_size=%f, using data points as seeds.", m.Bandwidth)
		return X
	}
	return seeds
}

func coordKey(p []float64) string {
	b := make([]byte, 0, len(p)*8)
	for _, v := range p {
		u := math.Float64bits(v)
		for s := 0; s < 64; s += 8 {
			b = append(b, byte(u>>s))
		}
	}
	return string(b)
}

func lexGreater(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
