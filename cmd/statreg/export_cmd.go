package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/internal/app"
	"github.com/tigerroll/statreg/pkg/batch/component/export"
)

func newExportLogCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-log <job-id>",
		Short: "Write the upload log of a job as Parquet files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var exporter *export.LogExporter
			options := app.CommandOptions(root.embedded, root.loadOptions(), fx.Populate(&exporter))
			return runOneShot(cmd.Context(), options, func(ctx context.Context) error {
				written, err := exporter.Export(ctx, args[0])
				for _, name := range written {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return err
			})
		},
	}
}
