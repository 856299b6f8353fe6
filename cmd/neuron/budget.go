package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/budget"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/models"
)

func newBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect the daily spend budget",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's spend vs the daily limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Budget.Enabled {
				fmt.Println("Budget enforcement is disabled.")
				return nil
			}

			l, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			enforcer := budget.New(models.BudgetPolicy{
				DailyLimit:     cfg.Budget.DailyLimit,
				AlertThreshold: cfg.Budget.AlertThreshold,
			}, l)
			s, err := enforcer.Status(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tLIMIT\tUSED\tREMAINING\tUSED %\tSTATUS")
			state := "ok"
			switch {
			case s.Exceeded:
				state = "exceeded"
			case s.Alert:
				state = "alert"
			}
			fmt.Fprintf(w, "%s\t$%.2f\t$%.2f\t$%.2f\t%.1f%%\t%s\n",
				s.Day, s.Policy.DailyLimit, s.Used, s.Remaining, s.UsedPct*100, state)
			return w.Flush()
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}
