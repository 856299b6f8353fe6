package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/voicekey"
)

func newKeyCmd() *cobra.Command {
	var emotion string

	cmd := &cobra.Command{
		Use:   "key <agent> <text>",
		Short: "Print the cache key and storage path for a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k := voicekey.Build(args[0], args[1], emotion, cfg.Voice.SettingsVersion)
			fmt.Printf("Key:  %s\nPath: %s\nText: %q\n", k.String(), k.Path(), k.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&emotion, "emotion", "", "emotion label")
	return cmd
}
