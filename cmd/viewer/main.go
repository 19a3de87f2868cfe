// Command viewer serves the interactive scatter plot of a generated dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oarkflow/clusterviz/pkg/config"
	"github.com/oarkflow/clusterviz/pkg/history"
	"github.com/oarkflow/clusterviz/pkg/logging"
	"github.com/oarkflow/clusterviz/pkg/metrics"
	"github.com/oarkflow/clusterviz/pkg/table"
	"github.com/oarkflow/clusterviz/pkg/viewer"
)

var configFlag = flag.String("config", "config.yaml", "Path to a .yaml or .bcl config file")

func main() {
	flag.Parse()
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("viewer failed", slog.String("err", err.Error()))
		stop()
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	t, err := table.ReadFile(cfg.Viewer.Data)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	var opts []viewer.Option
	if cfg.Viewer.Metrics {
		opts = append(opts, viewer.WithMetrics(metrics.New()))
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, viewer.WithHistory(store))
	}
	srv, err := viewer.New(cfg.Viewer, t, log, opts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
