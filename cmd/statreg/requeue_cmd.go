package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/internal/app"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

func newRequeueCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Put a finished job back into the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobs repository.JobRepository
			var tracker ports.ProgressTracker
			options := app.CommandOptions(root.embedded, root.loadOptions(), fx.Populate(&jobs, &tracker))
			return runOneShot(cmd.Context(), options, func(ctx context.Context) error {
				if err := jobs.Requeue(ctx, args[0]); err != nil {
					return err
				}
				if err := tracker.Clear(ctx, args[0]); err != nil {
					logger.Warnf("Failed to clear progress of job %s: %v", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s requeued\n", args[0])
				return nil
			})
		},
	}
}
