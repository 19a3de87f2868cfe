package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/oarkflow/bcl"
	"gopkg.in/yaml.v3"
)

const (
	EnvData       = "CLUSTERVIZ_DATA"
	EnvAddr       = "CLUSTERVIZ_ADDR"
	EnvLogLevel   = "CLUSTERVIZ_LOG_LEVEL"
	EnvHistoryDSN = "CLUSTERVIZ_HISTORY_DSN"
)

type Config struct {
	Generator Generator `bcl:"generator" yaml:"generator"`
	Viewer    Viewer    `bcl:"viewer" yaml:"viewer"`
	Log       Log       `bcl:"log" yaml:"log"`
	History   History   `bcl:"history" yaml:"history"`
}

type Generator struct {
	Output     string    `bcl:"output" yaml:"output"`
	Samples    int       `bcl:"samples" yaml:"samples"`
	Seed       int64     `bcl:"seed" yaml:"seed"`
	Stds       []float64 `bcl:"stds" yaml:"stds"`
	Strategies []string  `bcl:"strategies,optional" yaml:"strategies"`
	Archive    bool      `bcl:"archive,optional" yaml:"archive"`
}

type HealthCheck struct {
	Enabled bool   `bcl:"enabled" yaml:"enabled"`
	Path    string `bcl:"path" yaml:"path"`
}

type Viewer struct {
	Name          string      `bcl:"name" yaml:"name"`
	Address       string      `bcl:"address" yaml:"address"`
	Data          string      `bcl:"data" yaml:"data"`
	DefaultColumn string      `bcl:"default_column" yaml:"default_column"`
	ReadTimeout   int         `bcl:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  int         `bcl:"write_timeout" yaml:"write_timeout"`
	IdleTimeout   int         `bcl:"idle_timeout" yaml:"idle_timeout"`
	HealthCheck   HealthCheck `bcl:"health_check" yaml:"health_check"`
	Metrics       bool        `bcl:"metrics,optional" yaml:"metrics"`
}

type Log struct {
	Level      string `bcl:"level" yaml:"level"`
	File       string `bcl:"file,optional" yaml:"file"`
	MaxSize    int    `bcl:"max_size,optional" yaml:"max_size"`
	MaxBackups int    `bcl:"max_backups,optional" yaml:"max_backups"`
	MaxAge     int    `bcl:"max_age,optional" yaml:"max_age"`
	Compress   bool   `bcl:"compress,optional" yaml:"compress"`
}

type History struct {
	Enabled bool   `bcl:"enabled" yaml:"enabled"`
	Driver  string `bcl:"driver" yaml:"driver"`
	DSN     string `bcl:"dsn" yaml:"dsn"`
}

// Default holds the fixed demo parameters: 2500 points,
// three blobs, seed 170, data/clustering_data.csv, 0.0.0.0:8080.
func Default() Config {
	return Config{
		Generator: Generator{
			Output:  filepath.Join("data", "clustering_data.csv"),
			Samples: 2500,
			Seed:    170,
			Stds:    []float64{1.0, 2.5, 0.5},
		},
		Viewer: Viewer{
			Name:          "clusterviz",
			Address:       "0.0.0.0:8080",
			Data:          filepath.Join("data", "clustering_data.csv"),
			DefaultColumn: "DBSCAN",
			ReadTimeout:   10,
			WriteTimeout:  10,
			IdleTimeout:   60,
			HealthCheck:   HealthCheck{Enabled: true, Path: "/health"},
			Metrics:       true,
		},
		Log: Log{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
		},
		History: History{
			Driver: "sqlite",
			DSN:    filepath.Join("data", "history.db"),
		},
	}
}

// Load reads path (BCL or YAML, chosen by extension) over the defaults.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return nil, err
			}
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bcl":
		if _, err := bcl.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("bcl parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("yaml parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

// LoadEnv loads .env style files into the process environment. Missing
// files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Generator.Output == "" {
		c.Generator.Output = def.Generator.Output
	}
	if c.Generator.Samples == 0 {
		c.Generator.Samples = def.Generator.Samples
	}
	if len(c.Generator.Stds) == 0 {
		c.Generator.Stds = def.Generator.Stds
	}
	if c.Viewer.Address == "" {
		c.Viewer.Address = def.Viewer.Address
	}
	if c.Viewer.Data == "" {
		c.Viewer.Data = def.Viewer.Data
	}
	if c.Viewer.DefaultColumn == "" {
		c.Viewer.DefaultColumn = def.Viewer.DefaultColumn
	}
	if c.Viewer.HealthCheck.Enabled && c.Viewer.HealthCheck.Path == "" {
		c.Viewer.HealthCheck.Path = "/health"
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.History.Driver == "" {
		c.History.Driver = def.History.Driver
	}
	if c.History.DSN == "" {
		c.History.DSN = def.History.DSN
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvData); v != "" {
		c.Generator.Output = v
		c.Viewer.Data = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Viewer.Address = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvHistoryDSN); v != "" {
		c.History.DSN = v
		c.History.Enabled = true
	}
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Generator.Output) == "" {
		errs = append(errs, errors.New("generator.output is required"))
	}
	if c.Generator.Samples <= 0 {
		errs = append(errs, fmt.Errorf("generator.samples must be positive, got %d", c.Generator.Samples))
	}
	if len(c.Generator.Stds) == 0 {
		errs = append(errs, errors.New("generator.stds must list at least one blob"))
	}
	for i, s := range c.Generator.Stds {
		if s <= 0 {
			errs = append(errs, fmt.Errorf("generator.stds[%d] must be positive, got %s", i, strconv.FormatFloat(s, 'g', -1, 64)))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}
