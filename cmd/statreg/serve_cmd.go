package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/internal/app"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the import workers and the sweeper until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fxApp := fx.New(app.ServeOptions(root.embedded, root.loadOptions())...)
			if err := fxApp.Err(); err != nil {
				return err
			}

			startCtx, cancel := context.WithTimeout(cmd.Context(), fxApp.StartTimeout())
			defer cancel()
			if err := fxApp.Start(startCtx); err != nil {
				return err
			}
			logger.Infof("Import service started.")

			select {
			case <-cmd.Context().Done():
				logger.Warnf("Received shutdown request. Stopping import service...")
			case sig := <-fxApp.Done():
				logger.Warnf("Received signal '%v'. Stopping import service...", sig)
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 45*time.Second)
			defer stopCancel()
			if err := fxApp.Stop(stopCtx); err != nil {
				return err
			}
			logger.Infof("Import service stopped.")
			return nil
		},
	}
}
