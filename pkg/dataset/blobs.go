// Package dataset synthesizes the demo point cloud and scales it.
package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

type BlobsConfig struct {
	Samples   int
	Features  int
	Stds      []float64
	CenterBox [2]float64
	Seed      uint64
}

// Blobs is a sampled point cloud with its ground truth group per point.
type Blobs struct {
	X       [][]float64
	Y       []int
	Centers [][]float64
}

func DefaultBlobs() BlobsConfig {
	return BlobsConfig{
		Samples:   2500,
		Features:  2,
		Stds:      []float64{1.0, 2.5, 0.5},
		CenterBox: [2]float64{-10, 10},
		Seed:      170,
	}
}

// MakeBlobs draws isotropic gaussian blobs. The same config always yields
// the same points in the same order.
func MakeBlobs(cfg BlobsConfig) (*Blobs, error) {
	if cfg.Samples <= 0 {
		return nil, fmt.Errorf("samples must be positive, got %d", cfg.Samples)
	}
	if len(cfg.Stds) == 0 {
		return nil, errors.New("at least one center is required")
	}
	if cfg.Samples < len(cfg.Stds) {
		return nil, fmt.Errorf("samples (%d) fewer than centers (%d)", cfg.Samples, len(cfg.Stds))
	}
	for i, s := range cfg.Stds {
		if s <= 0 {
			return nil, fmt.Errorf("std of center %d must be positive, got %g", i, s)
		}
	}
	if cfg.Features <= 0 {
		cfg.Features = 2
	}
	if cfg.CenterBox[0] == cfg.CenterBox[1] {
		cfg.CenterBox = [2]float64{-10, 10}
	}
	lo, hi := cfg.CenterBox[0], cfg.CenterBox[1]
	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	k := len(cfg.Stds)
	centers := make([][]float64, k)
	for c := range centers {
		centers[c] = make([]float64, cfg.Features)
		for j := range centers[c] {
			centers[c][j] = lo + r.Float64()*(hi-lo)
		}
	}

	// The first Samples%k centers take one extra point each.
	counts := make([]int, k)
	for c := range counts {
		counts[c] = cfg.Samples / k
		if c < cfg.Samples%k {
			counts[c]++
		}
	}

	b := &Blobs{
		X:       make([][]float64, 0, cfg.Samples),
		Y:       make([]int, 0, cfg.Samples),
		Centers: centers,
	}
	for c, n := range counts {
		for i := 0; i < n; i++ {
			p := make([]float64, cfg.Features)
			for j := range p {
				p[j] = centers[c][j] + r.NormFloat64()*cfg.Stds[c]
			}
			b.X = append(b.X, p)
			b.Y = append(b.Y, c)
		}
	}
	r.Shuffle(len(b.X), func(i, j int) {
		b.X[i], b.X[j] = b.X[j], b.X[i]
		b.Y[i], b.Y[j] = b.Y[j], b.Y[i]
	})
	return b, nil
}
