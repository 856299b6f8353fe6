package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ffneuron/neuron/pkg/cache"
	"github.com/ffneuron/neuron/pkg/cache/s3"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/server"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the audio cache tiers",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show hot and cold cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()

			hot, err := openHot(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = hot.Close() }()
			cold, err := openCold(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cold.Close() }()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tBACKEND\tENTRIES\tSIZE\tHITS\tMISSES\tSTANDARD\tNEARLINE")
			for _, t := range []struct {
				name string
				src  server.StatsSource
			}{{"hot", hot}, {"cold", cold}} {
				st, err := t.src.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					t.name, st.Backend, humanize.Comma(st.Entries), humanize.Bytes(uint64(st.Bytes)),
					st.Hits, st.Misses, st.Classes[models.ClassStandard], st.Classes[models.ClassNearline])
			}
			return w.Flush()
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply the cold-store lifecycle now (nearline after 7 days, delete after 30)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			cold, err := openCold(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cold.Close() }()

			sw, ok := cold.(cache.Sweeper)
			if !ok {
				fmt.Printf("The %s backend applies its lifecycle server-side; run `neuron cache lifecycle` instead.\n", cfg.Cold.Backend)
				return nil
			}
			res, err := sw.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Transitioned: %d\nDeleted:      %d\n", res.Transitioned, res.Deleted)
			return nil
		},
	}

	lifecycleCmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Install the bucket lifecycle rule on the S3 cold store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			cold, err := openCold(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cold.Close() }()

			c, ok := cold.(*s3.Cold)
			if !ok {
				return fmt.Errorf("lifecycle rules apply to the s3 backend, not %q", cfg.Cold.Backend)
			}
			if err := c.EnsureLifecycle(ctx); err != nil {
				return err
			}
			fmt.Printf("Lifecycle installed on s3://%s (%s after %s, delete after %s).\n",
				cfg.Cold.S3.Bucket, cfg.Cold.S3.TransitionClass, models.NearlineAfter, models.DeleteAfter)
			return nil
		},
	}

	cmd.AddCommand(statsCmd, sweepCmd, lifecycleCmd)
	return cmd
}
