package viewer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/clusterviz/pkg/config"
	"github.com/oarkflow/clusterviz/pkg/generator"
	"github.com/oarkflow/clusterviz/pkg/table"
)

func TestGeneratedDatasetIsServed(t *testing.T) {
	if testing.Short() {
		t.Skip("fits every strategy on the full default dataset")
	}
	cfg := config.Default()
	cfg.Generator.Output = filepath.Join(t.TempDir(), "clustering_data.csv")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	g, err := generator.New(cfg.Generator, log)
	require.NoError(t, err)
	_, err = g.Run(context.Background())
	require.NoError(t, err)

	tb, err := table.ReadFile(cfg.Generator.Output)
	require.NoError(t, err)
	assert.Equal(t, 2500, tb.Len())
	assert.Len(t, tb.Names(), 16)
	require.Equal(t, generator.StrategyNames, tb.LabelColumns())

	s, err := New(cfg.Viewer, tb, log)
	require.NoError(t, err)
	status, body := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, status)
	html := string(body)
	assert.Equal(t, 10, strings.Count(html, "<option "))
	assert.Equal(t, 1, strings.Count(html, " selected>"))
	assert.Contains(t, html, `<option value="DBSCAN" selected>DBSCAN</option>`)
}
