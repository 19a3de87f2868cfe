// Package generator synthesizes the demo dataset, fits every configured
// clustering strategy to it and writes the resulting table.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/oarkflow/clusterviz/pkg/cluster"
	"github.com/oarkflow/clusterviz/pkg/config"
	"github.com/oarkflow/clusterviz/pkg/dag"
	"github.com/oarkflow/clusterviz/pkg/dataset"
	"github.com/oarkflow/clusterviz/pkg/history"
	"github.com/oarkflow/clusterviz/pkg/neighbors"
	"github.com/oarkflow/clusterviz/pkg/table"
)

type Option func(*Generator)

// WithHistory records every run in store.
func WithHistory(store *history.Store) Option {
	return func(g *Generator) { g.store = store }
}

func WithParams(p Params) Option {
	return func(g *Generator) { g.params = p }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

type Generator struct {
	cfg        config.Generator
	params     Params
	strategies []string
	log        *slog.Logger
	store      *history.Store
	now        func() time.Time
}

type Result struct {
	RunID      string
	Output     string
	Archive    string
	Table      *table.Table
	Strategies []history.StrategyRun
}

func New(cfg config.Generator, log *slog.Logger, opts ...Option) (*Generator, error) {
	strategies, err := resolveStrategies(cfg.Strategies)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	g := &Generator{
		cfg:        cfg,
		params:     DefaultParams(),
		strategies: strategies,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// run carries the state one generation shares between its steps.
type run struct {
	id       string
	started  time.Time
	blobs    *dataset.Blobs
	scaled   [][]float64
	prepared Prepared
	table    *table.Table
	summary  []history.StrategyRun
	result   *Result
}

// Run executes blobs → scale → prepare → fit (once per strategy) → write.
// The first failing step aborts the run.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	r := &run{id: dag.NewID(), started: g.now()}
	log := g.log.With("run", r.id)

	flow := dag.New()
	flow.AddNode("blobs", "Make blobs", g.makeBlobs(r), true)
	flow.AddNode("scale", "Standardize", g.scale(r))
	flow.AddNode("prepare", "Prepare strategies", g.prepare(r, log))
	flow.AddNode("fit", "Fit strategy", g.fit(r, log))
	flow.AddNode("write", "Write table", g.write(r, log))
	for _, e := range []struct {
		label   string
		kind    dag.EdgeType
		source  string
		targets []string
	}{
		{"points", dag.SimpleEdge, "blobs", []string{"scale"}},
		{"scaled", dag.SimpleEdge, "scale", []string{"prepare"}},
		{"each strategy", dag.LoopEdge, "prepare", []string{"fit"}},
		{"labels", dag.SimpleEdge, "prepare", []string{"write"}},
	} {
		if err := flow.AddEdge(e.label, e.kind, e.source, e.targets...); err != nil {
			return nil, err
		}
	}

	log.Info("generation started", "samples", g.cfg.Samples, "seed", g.cfg.Seed, "strategies", len(g.strategies))
	res := flow.Process(ctx, nil)
	if res.Error != nil {
		log.Error("generation failed", "step", res.NodeKey, "error", res.Error)
		return nil, res.Error
	}
	log.Info("generation finished", "output", r.result.Output, "rows", r.table.Len(), "elapsed", g.now().Sub(r.started))
	return r.result, nil
}

func (g *Generator) makeBlobs(r *run) dag.Handler {
	return func(_ context.Context, _ json.RawMessage) dag.Result {
		cfg := dataset.DefaultBlobs()
		cfg.Samples = g.cfg.Samples
		cfg.Stds = g.cfg.Stds
		cfg.Seed = uint64(g.cfg.Seed)
		b, err := dataset.MakeBlobs(cfg)
		if err != nil {
			return dag.Result{Error: err}
		}
		r.blobs = b
		return jsonResult(map[string]int{"samples": len(b.X), "centers": len(b.Centers)})
	}
}

func (g *Generator) scale(r *run) dag.Handler {
	return func(_ context.Context, payload json.RawMessage) dag.Result {
		scaled, err := dataset.NewStandardScaler().FitTransform(r.blobs.X)
		if err != nil {
			return dag.Result{Error: err}
		}
		r.scaled = scaled
		return dag.Result{Payload: payload}
	}
}

// prepare derives the shared strategy inputs and emits the strategy names
// for the loop edge.
func (g *Generator) prepare(r *run, log *slog.Logger) dag.Handler {
	return func(_ context.Context, _ json.RawMessage) dag.Result {
		bw, err := cluster.EstimateBandwidth(r.scaled, g.params.Quantile)
		if err != nil {
			return dag.Result{Error: fmt.Errorf("estimate bandwidth: %w", err)}
		}
		conn, err := neighbors.KNeighborsGraph(r.scaled, g.params.NNeighbors)
		if err != nil {
			return dag.Result{Error: fmt.Errorf("connectivity: %w", err)}
		}
		r.prepared = Prepared{X: r.scaled, Bandwidth: bw, Connectivity: conn, Seed: uint64(g.cfg.Seed)}
		t, err := table.New(r.blobs.X, r.blobs.Y, r.scaled)
		if err != nil {
			return dag.Result{Error: err}
		}
		r.table = t
		log.Debug("strategy inputs ready", "bandwidth", bw, "components", len(conn.Components()))
		return jsonResult(g.strategies)
	}
}

func (g *Generator) fit(r *run, log *slog.Logger) dag.Handler {
	return func(ctx context.Context, payload json.RawMessage) dag.Result {
		var name string
		if err := json.Unmarshal(payload, &name); err != nil {
			return dag.Result{Error: err}
		}
		s, err := NewStrategy(name, g.params, r.prepared)
		if err != nil {
			return dag.Result{Error: err}
		}
		if w, ok := s.(cluster.Warner); ok {
			w.SetWarningSink(warningLogger(log))
		}
		t0 := time.Now()
		if err := s.Fit(ctx, r.prepared.X); err != nil {
			return dag.Result{Error: fmt.Errorf("fit %s: %w", name, err)}
		}
		labels, err := cluster.LabelsOf(s, r.prepared.X)
		if err != nil {
			return dag.Result{Error: fmt.Errorf("labels of %s: %w", name, err)}
		}
		elapsed := time.Since(t0)
		if err := r.table.AddLabels(name, labels); err != nil {
			return dag.Result{Error: err}
		}
		sr := history.StrategyRun{
			Name:     name,
			Clusters: cluster.NumClusters(labels),
			Noise:    cluster.NumNoise(labels),
			Duration: elapsed,
		}
		r.summary = append(r.summary, sr)
		log.Info("strategy fitted", "strategy", name, "clusters", sr.Clusters, "noise", sr.Noise, "duration", elapsed)
		return jsonResult(sr)
	}
}

func (g *Generator) write(r *run, log *slog.Logger) dag.Handler {
	return func(ctx context.Context, _ json.RawMessage) dag.Result {
		res := &Result{RunID: r.id, Output: g.cfg.Output, Table: r.table, Strategies: r.summary}
		if err := r.table.WriteFile(g.cfg.Output); err != nil {
			return dag.Result{Error: err}
		}
		log.Info("table written", "path", g.cfg.Output, "columns", len(r.table.Names()))
		if g.cfg.Archive {
			res.Archive = ArchivePath(g.cfg.Output, r.started, r.id)
			if err := r.table.WriteFile(res.Archive); err != nil {
				return dag.Result{Error: err}
			}
			log.Info("archive written", "path", res.Archive)
		}
		if g.store != nil {
			err := g.store.RecordRun(ctx, history.Run{
				ID:         r.id,
				CreatedAt:  r.started,
				Seed:       g.cfg.Seed,
				Samples:    r.table.Len(),
				Output:     res.Output,
				Archive:    res.Archive,
				Strategies: r.summary,
			})
			if err != nil {
				return dag.Result{Error: err}
			}
		}
		r.result = res
		return jsonResult(map[string]any{"run": r.id, "output": res.Output, "archive": res.Archive})
	}
}

// ArchivePath names the timestamped copy written next to output.
func ArchivePath(output string, at time.Time, runID string) string {
	ext := filepath.Ext(output)
	stem := strings.TrimSuffix(output, ext)
	if ext == "" {
		ext = ".csv"
	}
	return fmt.Sprintf("%s-%s-%s%s", stem, at.UTC().Format("20060102T150405Z"), runID, ext)
}

func jsonResult(v any) dag.Result {
	b, err := json.Marshal(v)
	if err != nil {
		return dag.Result{Error: err}
	}
	return dag.Result{Payload: b}
}
