package cluster

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/oarkflow/clusterviz/pkg/neighbors"
)

// denseEigenLimit is the largest graph solved with a full eigendecomposition;
// bigger graphs use subspace iteration on the sparse affinity.
const denseEigenLimit = 600

// SpectralClustering embeds the points with the leading eigenvectors of the
// normalized nearest-neighbor affinity and runs k-means in that space.
type SpectralClustering struct {
	K          int
	NNeighbors int
	NInit      int
	Seed       uint64
	MaxIter    int
	Tol        float64

	Embedding [][]float64
	labels    []int
	warner
}

func NewSpectralClustering(k int, seed uint64) *SpectralClustering {
	return &SpectralClustering{
		K:          k,
		NNeighbors: 10,
		NInit:      10,
		Seed:       seed,
		MaxIter:    3000,
		Tol:        1e-6,
		warner:     warner{name: "Spectral Clustering"},
	}
}

func (s *SpectralClustering) Fit(ctx context.Context, X [][]float64) error {
	if s.K < 1 {
		return invalid("n_clusters must be at least 1, got %d", s.K)
	}
	if s.NNeighbors < 2 {
		return invalid("n_neighbors must be at least 2, got %d", s.NNeighbors)
	}
	if err := checkData(X, max(s.K, s.NNeighbors)+1); err != nil {
		return err
	}
	// The affinity counts each point as one of its own neighbors; the
	// diagonal is dropped by the Laplacian anyway.
	g, err := neighbors.KNeighborsGraph(X, s.NNeighbors-1)
	if err != nil {
		return err
	}
	if len(g.Components()) > 1 {
		s.warn("Graph is not fully connected, spectral embedding may not work as expected.")
	}

	n := len(X)
	na := newNormAffinity(g)
	var vecs [][]float64
	if n <= denseEigenLimit {
		vecs = na.denseLeading(s.K)
	} else {
		var ok bool
		vecs, ok, err = na.subspaceLeading(ctx, s.K, s.MaxIter, s.Tol, s.Seed)
		if err != nil {
			return err
		}
		if !ok {
			s.warn("spectral embedding did not converge after %d iterations", s.MaxIter)
		}
	}

	for _, v := range vecs {
		for i := range v {
			v[i] /= na.sqrtDeg[i]
		}
		signFlip(v)
	}
	s.Embedding = make([][]float64, n)
	for i := range s.Embedding {
		row := make([]float64, len(vecs))
		for c, v := range vecs {
			row[c] = v[i]
		}
		s.Embedding[i] = row
	}

	km := NewKMeans(s.K, s.Seed)
	km.NInit = max(s.NInit, 1)
	if err := km.Fit(ctx, s.Embedding); err != nil {
		return err
	}
	s.labels = km.Labels()
	return nil
}

func (s *SpectralClustering) Labels() []int { return s.labels }

// normAffinity is D^-1/2 A D^-1/2 with the diagonal of A removed, kept in
// adjacency list form.
type normAffinity struct {
	n       int
	adj     [][]neighbors.Edge
	sqrtDeg []float64
}

func newNormAffinity(g *neighbors.Graph) *normAffinity {
	n := g.Len()
	na := &normAffinity{n: n, adj: make([][]neighbors.Edge, n), sqrtDeg: make([]float64, n)}
	for i := 0; i < n; i++ {
		na.adj[i] = g.Neighbors(i)
		var d float64
		for _, e := range na.adj[i] {
			d += e.Weight
		}
		if d == 0 {
			d = 1
		}
		na.sqrtDeg[i] = math.Sqrt(d)
	}
	for i, edges := range na.adj {
		for k, e := range edges {
			edges[k].Weight = e.Weight / (na.sqrtDeg[i] * na.sqrtDeg[e.To])
		}
	}
	return na
}

// shiftedMul computes y = (I + N) x, whose leading eigenvectors are those of
// the smallest eigenvalues of the normalized Laplacian I - N.
func (na *normAffinity) shiftedMul(y, x []float64) {
	for i, edges := range na.adj {
		v := x[i]
		for _, e := range edges {
			v += e.Weight * x[e.To]
		}
		y[i] = v
	}
}

func (na *normAffinity) denseLeading(k int) [][]float64 {
	n := na.n
	L := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		L.SetSym(i, i, 1)
		for _, e := range na.adj[i] {
			if e.To > i {
				L.SetSym(i, e.To, -e.Weight)
			}
		}
	}
	var eig mat.EigenSym
	eig.Factorize(L, true)
	var V mat.Dense
	eig.VectorsTo(&V)
	out := make([][]float64, k)
	for c := 0; c < k; c++ {
		out[c] = mat.Col(nil, c, &V)
	}
	return out
}

// subspaceLeading finds the k leading eigenvectors of I + N by block power
// iteration with Rayleigh-Ritz projection every few steps.
func (na *normAffinity) subspaceLeading(ctx context.Context, k, maxIter int, tol float64, seed uint64) ([][]float64, bool, error) {
	n := na.n
	p := min(k+7, n)
	r := rand.New(rand.NewPCG(seed, 0x7370656374726c))
	Q := make([][]float64, p)
	for c := range Q {
		Q[c] = make([]float64, n)
		for i := range Q[c] {
			Q[c][i] = r.NormFloat64()
		}
	}
	orthonormalize(Q)
	Z := make([][]float64, p)
	for c := range Z {
		Z[c] = make([]float64, n)
	}

	const checkEvery = 10
	for it := 1; it <= maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		for c := range Q {
			na.shiftedMul(Z[c], Q[c])
		}
		Q, Z = Z, Q
		orthonormalize(Q)
		if it%checkEvery != 0 && it != maxIter {
			continue
		}
		ritz, theta := na.rayleighRitz(Q)
		Q = ritz
		converged := true
		res := make([]float64, n)
		for c := p - k; c < p && converged; c++ {
			na.shiftedMul(res, Q[c])
			floats.AddScaled(res, -theta[c], Q[c])
			converged = floats.Norm(res, 2) <= tol
		}
		if converged || it == maxIter {
			out := make([][]float64, k)
			for c := 0; c < k; c++ {
				out[c] = Q[p-1-c]
			}
			return out, converged, nil
		}
	}
	return nil, false, nil
}

// rayleighRitz rotates the orthonormal block Q onto the eigenvectors of its
// projected operator, returned in ascending eigenvalue order.
func (na *normAffinity) rayleighRitz(Q [][]float64) ([][]float64, []float64) {
	p, n := len(Q), na.n
	MQ := make([][]float64, p)
	for c := range Q {
		MQ[c] = make([]float64, n)
		na.shiftedMul(MQ[c], Q[c])
	}
	H := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			H.SetSym(a, b, floats.Dot(Q[a], MQ[b]))
		}
	}
	var eig mat.EigenSym
	eig.Factorize(H, true)
	theta := eig.Values(nil)
	var U mat.Dense
	eig.VectorsTo(&U)
	out := make([][]float64, p)
	for c := 0; c < p; c++ {
		v := make([]float64, n)
		for b := 0; b < p; b++ {
			floats.AddScaled(v, U.At(b, c), Q[b])
		}
		out[c] = v
	}
	return out, theta
}

// orthonormalize applies modified Gram-Schmidt to the columns in place.
// Columns that collapse are refilled with a unit basis vector.
func orthonormalize(Q [][]float64) {
	for c := range Q {
		for b := 0; b < c; b++ {
			floats.AddScaled(Q[c], -floats.Dot(Q[b], Q[c]), Q[b])
		}
		norm := floats.Norm(Q[c], 2)
		if norm < 1e-12 {
			clear(Q[c])
			Q[c][c%len(Q[c])] = 1
			for b := 0; b < c; b++ {
				floats.AddScaled(Q[c], -floats.Dot(Q[b], Q[c]), Q[b])
			}
			norm = floats.Norm(Q[c], 2)
		}
		floats.Scale(1/norm, Q[c])
	}
}

// signFlip makes the entry with the largest magnitude positive.
func signFlip(v []float64) {
	idx := 0
	for i, x := range v {
		if math.Abs(x) > math.Abs(v[idx]) {
			idx = i
		}
	}
	if v[idx] < 0 {
		floats.Scale(-1, v)
	}
}
