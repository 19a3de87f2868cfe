package cluster

import (
	"context"
	"math"
	"sort"
)

// OPTICS orders the points by density reachability and extracts clusters
// from steep areas of the reachability plot (the xi method).
type OPTICS struct {
	MinSamples int
	// Xi is the minimum relative steepness of a cluster boundary.
	Xi float64
	// MinClusterSize is an absolute count, or a fraction of the sample
	// count when not above 1.
	MinClusterSize float64
	MaxEps         float64
	// PredecessorCorrection trims clusters whose end does not descend from
	// a point inside them.
	PredecessorCorrection bool

	Ordering      []int
	Reachability  []float64
	CoreDistances []float64
	Predecessor   []int
	Clusters      [][2]int
	labels        []int
	warner
}

func NewOPTICS(minSamples int, xi, minClusterSize float64) *OPTICS {
	return &OPTICS{
		MinSamples:            minSamples,
		Xi:                    xi,
		MinClusterSize:        minClusterSize,
		MaxEps:                math.Inf(1),
		PredecessorCorrection: true,
		warner:                warner{name: "OPTICS"},
	}
}

func (o *OPTICS) Fit(ctx context.Context, X [][]float64) error {
	if o.MinSamples < 2 {
		return invalid("min_samples must be at least 2, got %d", o.MinSamples)
	}
	if o.Xi <= 0 || o.Xi >= 1 {
		return invalid("xi must be in (0, 1), got %g", o.Xi)
	}
	if o.MinClusterSize <= 0 {
		return invalid("min_cluster_size must be positive, got %g", o.MinClusterSize)
	}
	if err := checkData(X, o.MinSamples); err != nil {
		return err
	}
	if err := o.buildGraph(ctx, X); err != nil {
		return err
	}

	n := len(X)
	minSize := o.MinClusterSize
	if minSize <= 1 {
		minSize = math.Max(2, minSize*float64(n))
	}
	reach := make([]float64, n+1)
	pred := make([]int, n)
	for i, p := range o.Ordering {
		reach[i] = o.Reachability[p]
		pred[i] = o.Predecessor[p]
	}
	reach[n] = math.Inf(1)
	o.Clusters = o.xiClusters(reach, pred, minSize)
	o.labels = extractXiLabels(o.Ordering, o.Clusters)
	return nil
}

func (o *OPTICS) Labels() []int { return o.labels }

func (o *OPTICS) buildGraph(ctx context.Context, X [][]float64) error {
	n := len(X)
	o.Reachability = make([]float64, n)
	o.Predecessor = make([]int, n)
	o.CoreDistances = make([]float64, n)
	dists := make([]float64, n)
	for i := range X {
		o.Reachability[i] = math.Inf(1)
		o.Predecessor[i] = -1
		for j := range X {
			dists[j] = math.Sqrt(sqDist(X[i], X[j]))
		}
		sort.Float64s(dists)
		cd := dists[o.MinSamples-1]
		if cd > o.MaxEps {
			cd = math.Inf(1)
		}
		o.CoreDistances[i] = cd
	}

	processed := make([]bool, n)
	o.Ordering = make([]int, 0, n)
	for len(o.Ordering) < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		point := -1
		for i := 0; i < n; i++ {
			if processed[i] {
				continue
			}
			if point < 0 || o.Reachability[i] < o.Reachability[point] {
				point = i
			}
		}
		processed[point] = true
		o.Ordering = append(o.Ordering, point)
		core := o.CoreDistances[point]
		if math.IsInf(core, 1) {
			continue
		}
		for j := 0; j < n; j++ {
			if processed[j] {
				continue
			}
			d := math.Sqrt(sqDist(X[point], X[j]))
			if d > o.MaxEps {
				continue
			}
			rd := roundTo15(math.Max(d, core))
			if rd < o.Reachability[j] {
				o.Reachability[j] = rd
				o.Predecessor[j] = point
			}
		}
	}
	allInf := true
	for _, r := range o.Reachability {
		if !math.IsInf(r, 1) {
			allInf = false
			break
		}
	}
	if allInf {
		o.warn("All reachability values are inf. Set a larger max_eps or all data will be considered outliers.")
	}
	return nil
}

// roundTo15 rounds to 15 decimals so float noise does not decide
// reachability ties.
func roundTo15(x float64) float64 {
	if math.IsInf(x, 0) || math.Abs(x) > 1e3 {
		return x
	}
	return math.RoundToEven(x*1e15) / 1e15
}

type steepArea struct {
	start, end int
	mib        float64
}

// xiClusters scans the reachability plot (with a trailing +Inf) for steep
// down areas matched by later steep up areas. Each cluster is an
// inclusive [start, end] range over the ordering; nested clusters come
// before the clusters enclosing them.
func (o *OPTICS) xiClusters(reach []float64, pred []int, minSize float64) [][2]int {
	n := len(reach) - 1
	comp := 1 - o.Xi
	steepUp := make([]bool, n)
	steepDown := make([]bool, n)
	up := make([]bool, n)
	down := make([]bool, n)
	for i := 0; i < n; i++ {
		ratio := reach[i] / reach[i+1]
		if math.IsNaN(ratio) {
			continue
		}
		steepUp[i] = ratio <= comp
		steepDown[i] = ratio >= 1/comp
		down[i] = ratio > 1
		up[i] = ratio < 1
	}

	var sdas []*steepArea
	var clusters [][2]int
	index := 0
	mib := 0.0
	for steep := 0; steep < n; steep++ {
		if !steepUp[steep] && !steepDown[steep] {
			continue
		}
		if steep < index {
			continue
		}
		for k := index; k <= steep; k++ {
			mib = math.Max(mib, reach[k])
		}
		sdas = filterSteepAreas(sdas, mib, comp, reach)
		if steepDown[steep] {
			end := extendRegion(steepDown, up, steep, o.MinSamples)
			sdas = append(sdas, &steepArea{start: steep, end: end})
			index = end + 1
			mib = reach[index]
			continue
		}

		upStart := steep
		upEnd := extendRegion(steepUp, down, upStart, o.MinSamples)
		index = upEnd + 1
		mib = reach[index]
		var found [][2]int
		for _, D := range sdas {
			cStart, cEnd := D.start, upEnd
			if reach[cEnd+1]*comp < D.mib {
				continue
			}
			dMax := reach[D.start]
			if dMax*comp >= reach[cEnd+1] {
				for reach[cStart+1] > reach[cEnd+1] && cStart < D.end {
					cStart++
				}
			} else if reach[cEnd+1]*comp >= dMax {
				for cEnd > upStart && reach[cEnd-1] > dMax {
					cEnd--
				}
			}
			if o.PredecessorCorrection {
				var ok bool
				cStart, cEnd, ok = correctPredecessor(reach, pred, o.Ordering, cStart, cEnd)
				if !ok {
					continue
				}
			}
			if float64(cEnd-cStart+1) < minSize {
				continue
			}
			if cStart > D.end || cEnd < upStart {
				continue
			}
			found = append(found, [2]int{cStart, cEnd})
		}
		for i := len(found) - 1; i >= 0; i-- {
			clusters = append(clusters, found[i])
		}
	}
	return clusters
}

// filterSteepAreas drops the steep down areas whose start is not steep
// enough above mib and raises the mib of the rest.
func filterSteepAreas(sdas []*steepArea, mib, comp float64, reach []float64) []*steepArea {
	if math.IsInf(mib, 0) {
		return nil
	}
	out := sdas[:0]
	for _, s := range sdas {
		if mib <= reach[s.start]*comp {
			s.mib = math.Max(s.mib, mib)
			out = append(out, s)
		}
	}
	return out
}

// extendRegion grows a steep region from start while it stays steep,
// tolerating at most minSamples consecutive gentle points and ending at
// the first point that turns the other way.
func extendRegion(steep, reverse []bool, start, minSamples int) int {
	gentle := 0
	end := start
	for i := start; i < len(steep); i++ {
		switch {
		case steep[i]:
			gentle = 0
			end = i
		case !reverse[i]:
			gentle++
			if gentle > minSamples {
				return end
			}
		default:
			return end
		}
	}
	return end
}

func correctPredecessor(reach []float64, pred, ordering []int, s, e int) (int, int, bool) {
	for s < e {
		if reach[s] > reach[e] {
			return s, e, true
		}
		pe := pred[e]
		for i := s; i < e; i++ {
			if pe == ordering[i] {
				return s, e, true
			}
		}
		e--
	}
	return 0, 0, false
}

// extractXiLabels labels each cluster range unless it overlaps a range
// labelled before it, then maps ordering positions back to points.
func extractXiLabels(ordering []int, clusters [][2]int) []int {
	byPos := make([]int, len(ordering))
	for i := range byPos {
		byPos[i] = Noise
	}
	label := 0
	for _, c := range clusters {
		free := true
		for i := c[0]; i <= c[1]; i++ {
			if byPos[i] != Noise {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for i := c[0]; i <= c[1]; i++ {
			byPos[i] = label
		}
		label++
	}
	labels := make([]int, len(ordering))
	for pos, p := range ordering {
		labels[p] = byPos[pos]
	}
	return labels
}
