package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/config"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:     "neuron",
		Short:   "Neuron: cached voices for fantasy football AI debates",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults plus NEURON_* env when empty)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(),
		newCacheCmd(),
		newCostCmd(),
		newBudgetCmd(),
		newRouteCmd(),
		newKeyCmd(),
		newPrewarmCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs a charmbracelet/log handler as the slog default.
// Logs go to stderr so stdout stays clean for command output and MCP.
func setupLogging(level string) error {
	if level == "" {
		level = os.Getenv("NEURON_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "neuron",
	})
	slog.SetDefault(slog.New(logger))
	return nil
}

// loadConfig reads the config file when one is given, otherwise defaults
// with environment overrides.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg := config.Default()
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}
