// Package cluster implements the clustering strategies compared by the
// generator. Every strategy is fitted once with Fit; labels come either from
// the fit itself (Labeler) or from a Predict call (Predictor).
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Noise marks points a density based strategy left unassigned.
const Noise = -1

var (
	ErrInvalidParam = errors.New("invalid parameter")
	ErrNotFitted    = errors.New("strategy is not fitted")
)

type Strategy interface {
	Fit(ctx context.Context, X [][]float64) error
}

type Labeler interface {
	Labels() []int
}

type Predictor interface {
	Predict(X [][]float64) ([]int, error)
}

type Warning struct {
	Strategy string
	Message  string
}

type WarningSink func(Warning)

// Warner is implemented by strategies that report non fatal conditions.
type Warner interface {
	SetWarningSink(WarningSink)
}

// LabelsOf returns the labels of a fitted strategy, preferring the labels
// recorded by the fit over a predict pass on X.
func LabelsOf(s Strategy, X [][]float64) ([]int, error) {
	if l, ok := s.(Labeler); ok {
		if labels := l.Labels(); labels != nil {
			return labels, nil
		}
	}
	if p, ok := s.(Predictor); ok {
		return p.Predict(X)
	}
	return nil, fmt.Errorf("%T exposes neither labels nor predict", s)
}

type warner struct {
	name string
	sink WarningSink
}

func (w *warner) SetWarningSink(s WarningSink) { w.sink = s }

func (w *warner) warn(format string, args ...any) {
	if w.sink != nil {
		w.sink(Warning{Strategy: w.name, Message: fmt.Sprintf(format, args...)})
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParam, fmt.Sprintf(format, args...))
}

func checkData(X [][]float64, minRows int) error {
	if len(X) < minRows {
		return invalid("need at least %d samples, got %d", minRows, len(X))
	}
	d := len(X[0])
	if d == 0 {
		return invalid("samples have no features")
	}
	for i, row := range X {
		if len(row) != d {
			return invalid("row %d has %d features, want %d", i, len(row), d)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid("row %d contains a non finite value", i)
			}
		}
	}
	return nil
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// nearest returns the index of the center closest to p.
func nearest(p []float64, centers [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, ctr := range centers {
		if d := sqDist(p, ctr); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

func predictNearest(X [][]float64, centers [][]float64) ([]int, error) {
	if len(centers) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]int, len(X))
	for i, p := range X {
		if len(p) != len(centers[0]) {
			return nil, invalid("row %d has %d features, want %d", i, len(p), len(centers[0]))
		}
		out[i], _ = nearest(p, centers)
	}
	return out, nil
}

// NumClusters counts distinct non noise labels.
func NumClusters(labels []int) int {
	seen := map[int]struct{}{}
	for _, l := range labels {
		if l != Noise {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}

func NumNoise(labels []int) int {
	n := 0
	for _, l := range labels {
		if l == Noise {
			n++
		}
	}
	return n
}
