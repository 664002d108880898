package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/internal/app"
	"github.com/tigerroll/statreg/pkg/batch/component/migration"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the import schema",
	}

	run := func(cmd *cobra.Command, fn func(ctx context.Context, m migration.Migrator) error) error {
		var m migration.Migrator
		options := app.MigrationOptions(root.embedded, root.loadOptions(), fx.Populate(&m))
		return runOneShot(cmd.Context(), options, func(ctx context.Context) error {
			return fn(ctx, m)
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, m migration.Migrator) error { return m.Up(ctx) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, m migration.Migrator) error { return m.Down(ctx) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, m migration.Migrator) error {
				version, dirty, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})
	return cmd
}
