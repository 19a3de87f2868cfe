package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	// migrations are idempotent
	require.NoError(t, s.Migrate(ctx))

	first := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	require.NoError(t, s.RecordRun(ctx, Run{
		ID: "older", CreatedAt: first, Seed: 170, Samples: 2500, Output: "data/clustering_data.csv",
	}))
	require.NoError(t, s.RecordRun(ctx, Run{
		ID:        "newer",
		CreatedAt: first.Add(time.Hour),
		Seed:      170,
		Samples:   2500,
		Output:    "data/clustering_data.csv",
		Archive:   "data/clustering_data-20260102T040405Z-newer.csv",
		Strategies: []StrategyRun{
			{Name: "DBSCAN", Clusters: 3, Noise: 12, Duration: 40 * time.Millisecond},
			{Name: "Ward", Clusters: 3, Duration: 2 * time.Second},
		},
	}))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.True(t, runs[0].CreatedAt.Equal(first.Add(time.Hour)))
	assert.Equal(t, int64(170), runs[0].Seed)
	assert.Equal(t, 2500, runs[0].Samples)
	assert.Equal(t, "data/clustering_data-20260102T040405Z-newer.csv", runs[0].Archive)
	assert.Equal(t, []StrategyRun{
		{Name: "DBSCAN", Clusters: 3, Noise: 12, Duration: 40 * time.Millisecond},
		{Name: "Ward", Clusters: 3, Duration: 2 * time.Second},
	}, runs[0].Strategies)
	assert.Equal(t, "older", runs[1].ID)
	assert.Empty(t, runs[1].Strategies)

	runs, err = s.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordRunErrors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	assert.Error(t, s.RecordRun(ctx, Run{}))
	require.NoError(t, s.RecordRun(ctx, Run{ID: "a", CreatedAt: time.Now()}))
	assert.Error(t, s.RecordRun(ctx, Run{ID: "a", CreatedAt: time.Now()}))
}

func TestRunsEmpty(t *testing.T) {
	runs, err := openStore(t).Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
