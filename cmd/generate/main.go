// Command generate writes the clustered demo dataset.
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
	"github.com/oarkflow/clusterviz/pkg/generator"
	"github.com/oarkflow/clusterviz/pkg/history"
	"github.com/oarkflow/clusterviz/pkg/logging"
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
		slog.Error("generate failed", slog.String("err", err.Error()))
		stop()
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var opts []generator.Option
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, generator.WithHistory(store))
	}
	g, err := generator.New(cfg.Generator, log, opts...)
	if err != nil {
		return err
	}
	res, err := g.Run(ctx)
	if err != nil {
		return err
	}
	for _, s := range res.Strategies {
		fmt.Printf("%-26s clusters=%-3d noise=%-4d %s\n", s.Name, s.Clusters, s.Noise, s.Duration)
	}
	fmt.Printf("wrote %d rows to %s\n", res.Table.Len(), res.Output)
	return nil
}
