// Package history records generator runs in a SQL database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that text ordering is time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{`CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	seed INTEGER NOT NULL,
	samples INTEGER NOT NULL,
	output TEXT NOT NULL,
	archive TEXT NOT NULL DEFAULT ''
)`, `CREATE TABLE IF NOT EXISTS strategy_runs (
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	clusters INTEGER NOT NULL,
	noise INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
)`}

type StrategyRun struct {
	Name     string        `json:"name"`
	Clusters int           `json:"clusters"`
	Noise    int           `json:"noise"`
	Duration time.Duration `json:"duration"`
}

type Run struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	Seed       int64         `json:"seed"`
	Samples    int           `json:"samples"`
	Output     string        `json:"output"`
	Archive    string        `json:"archive,omitempty"`
	Strategies []StrategyRun `json:"strategies"`
}

type Store struct {
	db *squealx.DB
}

func Open(driver, dsn string) (*Store, error) {
	db, err := squealx.Open(driver, dsn, "history")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate history: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run needs an id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO runs (id, created_at, seed, samples, output, archive)
		VALUES (:id, :created_at, :seed, :samples, :output, :archive)`, map[string]any{
		"id":         run.ID,
		"created_at": run.CreatedAt.UTC().Format(timeLayout),
		"seed":       run.Seed,
		"samples":    run.Samples,
		"output":     run.Output,
		"archive":    run.Archive,
	})
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	for i, sr := range run.Strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := s.db.NamedExecContext(ctx, `INSERT INTO strategy_runs (run_id, position, name, clusters, noise, duration_ms)
			VALUES (:run_id, :position, :name, :clusters, :noise, :duration_ms)`, map[string]any{
			"run_id":      run.ID,
			"position":    i,
			"name":        sr.Name,
			"clusters":    sr.Clusters,
			"noise":       sr.Noise,
			"duration_ms": sr.Duration.Milliseconds(),
		})
		if err != nil {
			return fmt.Errorf("insert strategy %s of run %s: %w", sr.Name, run.ID, err)
		}
	}
	return nil
}

// Runs lists the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []map[string]any
	err := s.db.Select(&rows, "SELECT * FROM runs ORDER BY created_at DESC, id DESC LIMIT :limit", map[string]any{"limit": limit})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		created, err := time.Parse(timeLayout, asString(row["created_at"]))
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", asString(row["id"]), err)
		}
		run := Run{
			ID:        asString(row["id"]),
			CreatedAt: created,
			Seed:      asInt(row["seed"]),
			Samples:   int(asInt(row["samples"])),
			Output:    asString(row["output"]),
			Archive:   asString(row["archive"]),
		}
		var srs []map[string]any
		err = s.db.Select(&srs, "SELECT * FROM strategy_runs WHERE run_id = :run_id ORDER BY position", map[string]any{"run_id": run.ID})
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query strategies of run %s: %w", run.ID, err)
		}
		for _, sr := range srs {
			run.Strategies = append(run.Strategies, StrategyRun{
				Name:     asString(sr["name"]),
				Clusters: int(asInt(sr["clusters"])),
				Noise:    int(asInt(sr["noise"])),
				Duration: time.Duration(asInt(sr["duration_ms"])) * time.Millisecond,
			})
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case []byte:
		n, _ := strconv.ParseInt(string(x), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	}
	return 0
}
