package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/internal/app"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
)

func newJobsCmd(root *rootOptions) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List queued jobs, or show one job with its upload log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobs repository.JobRepository
			var logs repository.UploadLogRepository
			var tracker ports.ProgressTracker
			options := app.CommandOptions(root.embedded, root.loadOptions(), fx.Populate(&jobs, &logs, &tracker))
			return runOneShot(cmd.Context(), options, func(ctx context.Context) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer w.Flush()

				if len(args) == 1 {
					job, err := jobs.Get(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "id\t%s\nfile\t%s\nunit type\t%s\nstatus\t%s\nnote\t%s\n", job.ID, job.FilePath, job.UnitType, job.Status, job.Note)
					if p, ok, err := tracker.Get(ctx, job.ID); err != nil {
						return err
					} else if ok {
						fmt.Fprintf(w, "progress\t%d/%d (%d done, %d warnings, %d errors)\n", p.Processed, p.Total, p.Done, p.Warnings, p.Errors)
					}
					entries, err := logs.ListByJob(ctx, job.ID)
					if err != nil {
						return err
					}
					fmt.Fprintln(w, "\nPOS\tEXTERNAL ID\tSTATUS\tERRORS")
					for _, e := range entries {
						fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Position, e.ExternalID, e.Status, e.Errors)
					}
					return nil
				}

				list, err := jobs.List(ctx, model.JobStatus(status), limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tFILE\tUNIT TYPE\tSTATUS\tENQUEUED")
				for _, j := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.FileName, j.UnitType, j.Status, j.EnqueuedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only list jobs with this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs listed")
	return cmd
}
