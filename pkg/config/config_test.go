package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.Generator.Samples)
	assert.Equal(t, int64(170), cfg.Generator.Seed)
	assert.Equal(t, []float64{1.0, 2.5, 0.5}, cfg.Generator.Stds)
	assert.Equal(t, "0.0.0.0:8080", cfg.Viewer.Address)
	assert.Equal(t, "DBSCAN", cfg.Viewer.DefaultColumn)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
generator:
  output: out/table.csv
  samples: 300
  strategies: [DBSCAN, Ward]
viewer:
  address: 127.0.0.1:9000
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out/table.csv", cfg.Generator.Output)
	assert.Equal(t, 300, cfg.Generator.Samples)
	assert.Equal(t, []string{"DBSCAN", "Ward"}, cfg.Generator.Strategies)
	assert.Equal(t, int64(170), cfg.Generator.Seed)
	assert.Equal(t, "127.0.0.1:9000", cfg.Viewer.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
generator:
  samples: -4
  stds: [1.0, 0]
log:
  level: loud
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator.samples")
	assert.Contains(t, err.Error(), "generator.stds[1]")
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvData, "elsewhere.csv")
	t.Setenv(EnvAddr, ":7000")
	t.Setenv(EnvHistoryDSN, "file:runs.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "elsewhere.csv", cfg.Generator.Output)
	assert.Equal(t, "elsewhere.csv", cfg.Viewer.Data)
	assert.Equal(t, ":7000", cfg.Viewer.Address)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "file:runs.db", cfg.History.DSN)
}

func TestLoadEnvSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("CLUSTERVIZ_TEST_VALUE=42\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CLUSTERVIZ_TEST_VALUE") })

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), env))
	assert.Equal(t, "42", os.Getenv("CLUSTERVIZ_TEST_VALUE"))
}
