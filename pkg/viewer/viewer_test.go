package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/clusterviz/pkg/config"
	"github.com/oarkflow/clusterviz/pkg/history"
	"github.com/oarkflow/clusterviz/pkg/metrics"
	"github.com/oarkflow/clusterviz/pkg/table"
)

type figureJSON struct {
	AnimationDuration       int `json:"animationDuration"`
	AnimationDurationUpdate int `json:"animationDurationUpdate"`
	Series                  []struct {
		Name string `json:"name"`
		Data []struct {
			Name  string    `json:"name"`
			Value []float64 `json:"value"`
		} `json:"data"`
	} `json:"series"`
}

func testTable(t *testing.T) *table.Table {
	t.Helper()
	points := [][]float64{{0, 0}, {0.5, 0.1}, {10, 10}, {10.2, 9.9}, {5, -5}}
	y := []int{0, 0, 1, 1, 2}
	tb, err := table.New(points, y, points)
	require.NoError(t, err)
	require.NoError(t, tb.AddLabels("Ward", []int{0, 0, 1, 1, 2}))
	require.NoError(t, tb.AddLabels("DBSCAN", []int{0, 0, 1, 1, -1}))
	return tb
}

func decodeFigure(t *testing.T, v any) figureJSON {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var fig figureJSON
	require.NoError(t, json.Unmarshal(b, &fig))
	return fig
}

func TestBuildFigure(t *testing.T) {
	tb := testTable(t)
	fig, err := BuildFigure(tb, "DBSCAN")
	require.NoError(t, err)

	got := decodeFigure(t, fig)
	assert.Equal(t, 100, got.AnimationDuration)
	assert.Equal(t, 100, got.AnimationDurationUpdate)
	require.Len(t, got.Series, 3)
	var names []string
	total := 0
	for _, s := range got.Series {
		names = append(names, s.Name)
		total += len(s.Data)
	}
	assert.Equal(t, []string{"-1", "0", "1"}, names)
	assert.Equal(t, tb.Len(), total)

	noise := got.Series[0].Data
	require.Len(t, noise, 1)
	assert.Equal(t, "y=2 DBSCAN=-1", noise[0].Name)
	assert.Equal(t, []float64{5, -5}, noise[0].Value)
}

func TestBuildFigureUnknownColumn(t *testing.T) {
	tb := testTable(t)
	for _, col := range []string{"KMeans", "x0", ""} {
		_, err := BuildFigure(tb, col)
		assert.ErrorIs(t, err, ErrUnknownColumn, col)
	}
}

func TestSortedKeys(t *testing.T) {
	keys := sortedKeys(map[string][]opts.ScatterData{
		"10": nil, "2": nil, "-1": nil, "0": nil,
	})
	assert.Equal(t, []string{"-1", "0", "2", "10"}, keys)

	keys = sortedKeys(map[string][]opts.ScatterData{"b": nil, "a": nil, "1": nil})
	assert.Equal(t, []string{"1", "a", "b"}, keys)
}

func newServer(t *testing.T, options ...Option) *Server {
	t.Helper()
	cfg := config.Default().Viewer
	s, err := New(cfg, testTable(t), slog.New(slog.NewTextHandler(io.Discard, nil)), options...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func postUpdate(t *testing.T, s *Server, body string) (int, []byte) {
	req := httptest.NewRequest(http.MethodPost, UpdatePath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func TestIndexListsLabelColumns(t *testing.T) {
	s := newServer(t)
	status, body := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, status)
	html := string(body)
	assert.Contains(t, html, `<option value="Ward">Ward</option>`)
	assert.Contains(t, html, `<option value="DBSCAN" selected>DBSCAN</option>`)
	assert.NotContains(t, html, `<option value="x0"`)
	assert.Contains(t, html, echartsURL)
	assert.Contains(t, html, `replaceMerge: ["series"]`)
	assert.NotContains(t, html, "notMerge")
}

func TestDefaultColumnFallback(t *testing.T) {
	cfg := config.Default().Viewer
	cfg.DefaultColumn = "OPTICS"
	s, err := New(cfg, testTable(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	_, body := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, string(body), `<option value="Ward" selected>Ward</option>`)
}

func TestNewRejectsTableWithoutLabels(t *testing.T) {
	tb, err := table.New([][]float64{{0, 0}}, []int{0}, [][]float64{{0, 0}})
	require.NoError(t, err)
	_, err = New(config.Default().Viewer, tb, nil)
	assert.ErrorIs(t, err, table.ErrMalformed)
}

func TestUpdateComponent(t *testing.T) {
	m := metrics.New()
	s := newServer(t, WithMetrics(m))

	status, body := postUpdate(t, s, `{"value":"Ward"}`)
	require.Equal(t, http.StatusOK, status)
	var resp struct {
		Figure json.RawMessage `json:"figure"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	fig := decodeFigure(t, resp.Figure)
	require.Len(t, fig.Series, 3)
	assert.Equal(t, "0", fig.Series[0].Name)

	status, body = postUpdate(t, s, `{"value":"Nope"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "unknown label column")

	status, _ = postUpdate(t, s, `{"value":`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `clusterviz_figure_renders_total{column="Ward"} 1`)
	assert.Contains(t, string(body), "clusterviz_figure_render_errors_total 1")
	assert.Contains(t, string(body), "clusterviz_dataset_rows 5")
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	status, body := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, status)
	var got struct {
		Status  string   `json:"status"`
		Rows    int      `json:"rows"`
		Columns []string `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 5, got.Rows)
	assert.Equal(t, []string{"Ward", "DBSCAN"}, got.Columns)
}

func TestRuns(t *testing.T) {
	status, _ := do(t, newServer(t), httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusNotFound, status)

	ctx := context.Background()
	store, err := history.Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.RecordRun(ctx, history.Run{
		ID: "r1", CreatedAt: time.Now(), Seed: 170, Samples: 5, Output: "data/clustering_data.csv",
		Strategies: []history.StrategyRun{{Name: "Ward", Clusters: 3}},
	}))

	s := newServer(t, WithHistory(store))
	status, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"r1"`)
	assert.Contains(t, string(body), `"count":1`)

	status, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := config.Default().Viewer
	cfg.Address = "127.0.0.1:0"
	s, err := New(cfg, testTable(t), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
