package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/personas"
	"github.com/ffneuron/neuron/pkg/router"
)

func newCostCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Show spend and cache savings from the cost ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			l, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			sinceTime := beginningOfMonth()
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				sinceTime = t
			}

			b, err := l.Breakdown(context.Background(), sinceTime, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Print(formatCostTable(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD, default: start of month)")

	var (
		topic   string
		agents  []string
		turns   int
		chars   int
		hitRate float64
	)
	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Project the cost of a debate before running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if hitRate < 0 || hitRate > 1 {
				return fmt.Errorf("--hit-rate must be within [0, 1]")
			}
			r, err := router.New(cfg.Router)
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				for _, p := range personas.Matchup(topic) {
					agents = append(agents, p.ID)
				}
			}
			est := cost.NewPricing(cfg).EstimateDebate(r, agents, turns, chars, hitRate)
			fmt.Printf("Agents:   %s\nTurns:    %d\nLLM:      $%.4f\nVoice:    $%.4f\nSavings:  $%.4f\nTotal:    $%.4f\n",
				strings.Join(agents, ", "), turns, est.LLM, est.Voice, est.Savings, est.Total)
			return nil
		},
	}
	estimateCmd.Flags().StringVar(&topic, "topic", "", "debate topic, used to pick agents")
	estimateCmd.Flags().StringSliceVar(&agents, "agents", nil, "agent ids (default: matchup for the topic)")
	estimateCmd.Flags().IntVar(&turns, "turns", 10, "number of turns")
	estimateCmd.Flags().IntVar(&chars, "chars", 150, "average characters per turn")
	estimateCmd.Flags().Float64Var(&hitRate, "hit-rate", 0.3, "expected voice cache hit rate")

	var days int
	userCmd := &cobra.Command{
		Use:   "user <user-id>",
		Short: "Show one user's spend per day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			uc, err := l.UserCosts(context.Background(), args[0], time.Now().UTC().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			fmt.Print(formatUserCosts(uc))
			return nil
		},
	}
	userCmd.Flags().IntVar(&days, "days", 7, "number of days to look back")

	cmd.AddCommand(estimateCmd, userCmd)
	return cmd
}

func formatUserCosts(uc models.UserCosts) string {
	if uc.Events == 0 {
		return fmt.Sprintf("No cost data for user %s.\n", uc.UserID)
	}
	days := make([]string, 0, len(uc.ByDay))
	for d := range uc.ByDay {
		days = append(days, d)
	}
	sort.Strings(days)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-15s %12s\n", "DAY", "COST")
	sb.WriteString(strings.Repeat("-", 28) + "\n")
	for _, d := range days {
		fmt.Fprintf(&sb, "%-15s $%11.4f\n", d, uc.ByDay[d])
	}
	sb.WriteString(strings.Repeat("-", 28) + "\n")
	fmt.Fprintf(&sb, "%-15s $%11.4f\n", "TOTAL:", uc.Total)
	fmt.Fprintf(&sb, "\nuser %s: %s events across %s debates\n",
		uc.UserID, humanize.Comma(uc.Events), humanize.Comma(uc.Debates))
	return sb.String()
}

func beginningOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func formatCostTable(b models.CostBreakdown) string {
	if b.Events == 0 {
		return "No cost data found.\n"
	}
	services := make([]string, 0, len(b.ByService))
	for s := range b.ByService {
		services = append(services, s)
	}
	sort.Strings(services)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-15s %12s\n", "SERVICE", "COST")
	sb.WriteString(strings.Repeat("-", 28) + "\n")
	for _, s := range services {
		fmt.Fprintf(&sb, "%-15s $%11.4f\n", s, b.ByService[s])
	}
	sb.WriteString(strings.Repeat("-", 28) + "\n")
	fmt.Fprintf(&sb, "%-15s $%11.4f\n", "TOTAL:", b.Total)
	fmt.Fprintf(&sb, "\n%s events, %s cache hits, $%.4f saved\n",
		humanize.Comma(b.Events), humanize.Comma(b.CacheHits), b.CacheSavings)
	return sb.String()
}
