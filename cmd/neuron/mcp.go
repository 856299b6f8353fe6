package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/budget"
	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/mcp"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/router"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start neuron as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l, err := ledger.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init ledger: %w", err)
			}
			defer func() { _ = l.Close() }()

			r, err := router.New(cfg.Router)
			if err != nil {
				return err
			}

			deps := mcp.Deps{
				Ledger:          l,
				Router:          r,
				Pricing:         cost.NewPricing(cfg),
				SettingsVersion: cfg.Voice.SettingsVersion,
			}
			if cfg.Budget.Enabled {
				deps.Enforcer = budget.New(models.BudgetPolicy{
					DailyLimit:     cfg.Budget.DailyLimit,
					AlertThreshold: cfg.Budget.AlertThreshold,
				}, l)
			}
			// The memory hot tier belongs to the serving process, so only a
			// shared redis tier is visible here.
			if cfg.Hot.Backend == "redis" {
				hot, err := openHot(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = hot.Close() }()
				deps.Hot = hot
			}
			cold, err := openCold(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cold.Close() }()
			deps.Cold = cold

			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
