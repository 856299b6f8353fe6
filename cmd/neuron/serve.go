package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the debate and voice HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if sw, ok := a.cold.(cache.Sweeper); ok && cfg.Cold.SweepInterval > 0 {
				go runSweeper(ctx, sw, cfg.Cold.SweepInterval)
			}
			if a.enforcer != nil && cfg.Budget.CheckInterval > 0 {
				go a.enforcer.Watch(ctx, cfg.Budget.CheckInterval)
			}

			srv := server.New(cfg, server.Deps{
				Debates: a.debates,
				Voice:   a.voice,
				Budget:  a.enforcer,
				Metrics: a.metrics,
				Hot:     a.hot,
				Cold:    a.cold,
			})
			slog.Info("starting neuron",
				"hot", cfg.Hot.Backend, "cold", cfg.Cold.Backend, "budget", cfg.Budget.Enabled)
			return srv.ListenAndServe(ctx)
		},
	}
}

// runSweeper applies the cold-store lifecycle once at startup and then
// every interval until ctx is done.
func runSweeper(ctx context.Context, sw cache.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := sw.Sweep(ctx)
		if err != nil {
			slog.Error("cold sweep", "error", err)
		} else if res.Transitioned > 0 || res.Deleted > 0 {
			slog.Info("cold sweep", "transitioned", res.Transitioned, "deleted", res.Deleted)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
