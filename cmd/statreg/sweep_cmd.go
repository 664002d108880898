package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/internal/app"
	config "github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/engine/queue"
)

func newSweepCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Return expired in-progress jobs to the queue once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sweeper *queue.Sweeper
			var cfg *config.SweeperConfig
			options := app.CommandOptions(root.embedded, root.loadOptions(), fx.Populate(&sweeper, &cfg))
			return runOneShot(cmd.Context(), options, func(ctx context.Context) error {
				n, err := sweeper.Sweep(ctx, cfg.Timeout)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) returned to the queue\n", n)
				return nil
			})
		},
	}
}
