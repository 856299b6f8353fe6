package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/personas"
	"github.com/ffneuron/neuron/pkg/router"
	"github.com/ffneuron/neuron/pkg/textgen"
)

func newRouteCmd() *cobra.Command {
	var emotion string

	cmd := &cobra.Command{
		Use:   "route [agent]",
		Short: "Show the provider and voice for an agent, or the table for every persona",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := router.New(cfg.Router)
			if err != nil {
				return err
			}

			var agents []string
			if len(args) == 1 {
				agents = args
			} else {
				for _, p := range personas.All() {
					agents = append(agents, p.ID)
				}
			}
			emotions := []string{emotion}
			if emotion == "" && len(args) == 1 {
				emotions = textgen.Emotions
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tEMOTION\tPROVIDER\tTIER\tVOICE")
			for _, a := range agents {
				for _, e := range emotions {
					c := r.Select(a, e)
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a, defaultStr(e, "*"), c.Provider, c.Tier, c.VoiceID)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&emotion, "emotion", "", "emotion to route")
	return cmd
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
