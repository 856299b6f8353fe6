package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/personas"
)

func newPrewarmCmd() *cobra.Command {
	var emotion string

	cmd := &cobra.Command{
		Use:   "prewarm",
		Short: "Synthesize every persona's common phrases ahead of time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			phrases := make(map[string][]string)
			for _, p := range personas.All() {
				phrases[p.ID] = append(append([]string(nil), p.CommonPhrases...), p.SignaturePhrases...)
			}
			res, err := a.voice.Prewarm(ctx, phrases, emotion)
			fmt.Printf("Cached:    %d\nGenerated: %d\nFailed:    %d\nCost:      $%.4f\n",
				res.Cached, res.Generated, res.Failed, res.Cost)
			return err
		},
	}
	cmd.Flags().StringVar(&emotion, "emotion", "neutral", "emotion to prewarm")
	return cmd
}
