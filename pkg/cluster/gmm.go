package cluster

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var errIllDefinedCovariance = errors.New("fitting the mixture model failed because some components have ill-defined empirical covariance; try increasing reg_covar")

// GaussianMixture fits full covariance gaussian components by
// expectation maximization, starting from a k-means partition.
type GaussianMixture struct {
	K        int
	Tol      float64
	RegCovar float64
	MaxIter  int
	Seed     uint64

	Weights     []float64
	Means       [][]float64
	Covariances []*mat.SymDense
	Converged   bool
	NIter       int
	LowerBound  float64

	precisions []*mat.SymDense
	logDets    []float64
	warner
}

func NewGaussianMixture(k int, seed uint64) *GaussianMixture {
	return &GaussianMixture{
		K:        k,
		Tol:      1e-3,
		RegCovar: 1e-6,
		MaxIter:  100,
		Seed:     seed,
		warner:   warner{name: "Gaussian Mixture"},
	}
}

func (g *GaussianMixture) Fit(ctx context.Context, X [][]float64) error {
	if g.K < 1 {
		return invalid("n_components must be at least 1, got %d", g.K)
	}
	if g.Tol < 0 || g.RegCovar < 0 {
		return invalid("tol and reg_covar must be non negative")
	}
	if g.MaxIter < 1 {
		return invalid("max_iter must be at least 1, got %d", g.MaxIter)
	}
	if err := checkData(X, g.K); err != nil {
		return err
	}
	n := len(X)
	km := NewKMeans(g.K, g.Seed)
	if err := km.Fit(ctx, X); err != nil {
		return err
	}
	resp := make([][]float64, n)
	for i, l := range km.Labels() {
		resp[i] = make([]float64, g.K)
		resp[i][l] = 1
	}
	if err := g.mStep(X, resp); err != nil {
		return err
	}

	g.Converged = false
	lower := math.Inf(-1)
	for it := 1; it <= g.MaxIter; it++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		prev := lower
		var logResp [][]float64
		lower, logResp = g.eStep(X)
		for i := range logResp {
			for k, v := range logResp[i] {
				resp[i][k] = math.Exp(v)
			}
		}
		if err := g.mStep(X, resp); err != nil {
			return err
		}
		g.NIter = it
		if math.Abs(lower-prev) < g.Tol {
			g.Converged = true
			break
		}
	}
	g.LowerBound = lower
	if !g.Converged {
		g.warn("Best performing initialization did not converge. Try different init parameters, or increase max_iter, tol, or check for degenerate data.")
	}
	return nil
}

// Predict assigns each point to the component with the highest weighted
// log density.
func (g *GaussianMixture) Predict(X [][]float64) ([]int, error) {
	if g.precisions == nil {
		return nil, ErrNotFitted
	}
	out := make([]int, len(X))
	for i, p := range X {
		if len(p) != len(g.Means[0]) {
			return nil, invalid("row %d has %d features, want %d", i, len(p), len(g.Means[0]))
		}
		lp := g.weightedLogProb(p)
		out[i] = floats.MaxIdx(lp)
	}
	return out, nil
}

func (g *GaussianMixture) weightedLogProb(p []float64) []float64 {
	d := len(p)
	out := make([]float64, g.K)
	diff := mat.NewVecDense(d, nil)
	for k := 0; k < g.K; k++ {
		for j := range p {
			diff.SetVec(j, p[j]-g.Means[k][j])
		}
		maha := mat.Inner(diff, g.precisions[k], diff)
		out[k] = -0.5*(float64(d)*math.Log(2*math.Pi)+maha+g.logDets[k]) + math.Log(g.Weights[k])
	}
	return out
}

// eStep returns the mean log likelihood and the log responsibilities.
func (g *GaussianMixture) eStep(X [][]float64) (float64, [][]float64) {
	logResp := make([][]float64, len(X))
	var total float64
	for i, p := range X {
		lp := g.weightedLogProb(p)
		norm := floats.LogSumExp(lp)
		total += norm
		floats.AddConst(-norm, lp)
		logResp[i] = lp
	}
	return total / float64(len(X)), logResp
}

func (g *GaussianMixture) mStep(X [][]float64, resp [][]float64) error {
	n, d := len(X), len(X[0])
	const eps = 2.220446049250313e-16
	nk := make([]float64, g.K)
	for i := range resp {
		floats.Add(nk, resp[i])
	}
	floats.AddConst(10*eps, nk)

	g.Means = make([][]float64, g.K)
	g.Covariances = make([]*mat.SymDense, g.K)
	g.precisions = make([]*mat.SymDense, g.K)
	g.logDets = make([]float64, g.K)
	g.Weights = make([]float64, g.K)
	for k := 0; k < g.K; k++ {
		mean := make([]float64, d)
		for i, p := range X {
			floats.AddScaled(mean, resp[i][k], p)
		}
		floats.Scale(1/nk[k], mean)
		g.Means[k] = mean

		cov := mat.NewSymDense(d, nil)
		diff := make([]float64, d)
		for i, p := range X {
			w := resp[i][k]
			if w == 0 {
				continue
			}
			floats.SubTo(diff, p, mean)
			for a := 0; a < d; a++ {
				for b := a; b < d; b++ {
					cov.SetSym(a, b, cov.At(a, b)+w*diff[a]*diff[b])
				}
			}
		}
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				v := cov.At(a, b) / nk[k]
				if a == b {
					v += g.RegCovar
				}
				cov.SetSym(a, b, v)
			}
		}
		g.Covariances[k] = cov

		var chol mat.Cholesky
		if ok := chol.Factorize(cov); !ok {
			return errIllDefinedCovariance
		}
		prec := mat.NewSymDense(d, nil)
		if err := chol.InverseTo(prec); err != nil {
			return errIllDefinedCovariance
		}
		g.precisions[k] = prec
		g.logDets[k] = chol.LogDet()
		g.Weights[k] = nk[k] / float64(n)
	}
	floats.Scale(1/floats.Sum(g.Weights), g.Weights)
	return nil
}
