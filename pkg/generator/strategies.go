package generator

import (
	"fmt"

	"github.com/oarkflow/clusterviz/pkg/cluster"
	"github.com/oarkflow/clusterviz/pkg/neighbors"
)

const (
	MiniBatchKMeans         = "MiniBatch KMeans"
	AffinityPropagation     = "Affinity Propagation"
	MeanShift               = "MeanShift"
	SpectralClustering      = "Spectral Clustering"
	Ward                    = "Ward"
	AgglomerativeClustering = "Agglomerative Clustering"
	DBSCAN                  = "DBSCAN"
	OPTICS                  = "OPTICS"
	BIRCH                   = "BIRCH"
	GaussianMixture         = "Gaussian Mixture"
)

// StrategyNames lists every strategy in fit order. The names double as
// the label column headers.
var StrategyNames = []string{
	MiniBatchKMeans,
	AffinityPropagation,
	MeanShift,
	SpectralClustering,
	Ward,
	AgglomerativeClustering,
	DBSCAN,
	OPTICS,
	BIRCH,
	GaussianMixture,
}

// Params are the tuning knobs shared by the strategies.
type Params struct {
	Quantile       float64
	Eps            float64
	Damping        float64
	Preference     float64
	NNeighbors     int
	NClusters      int
	MinSamples     int
	Xi             float64
	MinClusterSize float64
}

func DefaultParams() Params {
	return Params{
		Quantile:       0.3,
		Eps:            0.18,
		Damping:        0.9,
		Preference:     -200,
		NNeighbors:     2,
		NClusters:      3,
		MinSamples:     5,
		Xi:             0.035,
		MinClusterSize: 0.2,
	}
}

// Prepared is what the strategies are built from: the standardized points
// and the artifacts derived from them once per run.
type Prepared struct {
	X            [][]float64
	Bandwidth    float64
	Connectivity *neighbors.Graph
	Seed         uint64
}

type factory func(p Params, in Prepared) cluster.Strategy

var registry = map[string]factory{
	MiniBatchKMeans: func(p Params, in Prepared) cluster.Strategy {
		return cluster.NewMiniBatchKMeans(p.NClusters, in.Seed)
	},
	AffinityPropagation: func(p Params, _ Prepared) cluster.Strategy {
		return cluster.NewAffinityPropagation(p.Damping, p.Preference, 0)
	},
	MeanShift: func(_ Params, in Prepared) cluster.Strategy {
		return cluster.NewMeanShift(in.Bandwidth, true)
	},
	SpectralClustering: func(p Params, in Prepared) cluster.Strategy {
		return cluster.NewSpectralClustering(p.NClusters, in.Seed)
	},
	Ward: func(p Params, in Prepared) cluster.Strategy {
		return cluster.NewWard(p.NClusters, in.Connectivity)
	},
	AgglomerativeClustering: func(p Params, in Prepared) cluster.Strategy {
		return cluster.NewAgglomerative(p.NClusters, cluster.Average, neighbors.Manhattan, in.Connectivity)
	},
	DBSCAN: func(p Params, _ Prepared) cluster.Strategy {
		return cluster.NewDBSCAN(p.Eps, p.MinSamples)
	},
	OPTICS: func(p Params, _ Prepared) cluster.Strategy {
		return cluster.NewOPTICS(p.MinSamples, p.Xi, p.MinClusterSize)
	},
	BIRCH: func(p Params, _ Prepared) cluster.Strategy {
		return cluster.NewBirch(0.5, 50, p.NClusters)
	},
	GaussianMixture: func(p Params, in Prepared) cluster.Strategy {
		return cluster.NewGaussianMixture(p.NClusters, in.Seed)
	},
}

// NewStrategy builds the named strategy with its configured parameters.
func NewStrategy(name string, p Params, in Prepared) (cluster.Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f(p, in), nil
}

// resolveStrategies validates a configured subset; empty means all.
func resolveStrategies(names []string) ([]string, error) {
	if len(names) == 0 {
		return StrategyNames, nil
	}
	seen := map[string]bool{}
	for _, n := range names {
		if _, ok := registry[n]; !ok {
			return nil, fmt.Errorf("unknown strategy %q", n)
		}
		if seen[n] {
			return nil, fmt.Errorf("strategy %q listed twice", n)
		}
		seen[n] = true
	}
	return names, nil
}
