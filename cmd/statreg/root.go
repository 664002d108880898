package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	config "github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	embedded   config.EmbeddedConfig
	ConfigFile string
	EnvFile    string
}

func (o *rootOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFile: o.ConfigFile, EnvFile: o.EnvFile}
}

func newRootCmd(embedded config.EmbeddedConfig) *cobra.Command {
	opts := &rootOptions{embedded: embedded}

	cmd := &cobra.Command{
		Use:           "statreg",
		Short:         "Statistical register import service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML file layered over the embedded configuration")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", os.Getenv("ENV_FILE_PATH"), ".env file to load (default ./.env)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newEnqueueCmd(opts))
	cmd.AddCommand(newJobsCmd(opts))
	cmd.AddCommand(newRequeueCmd(opts))
	cmd.AddCommand(newSweepCmd(opts))
	cmd.AddCommand(newExportLogCmd(opts))
	return cmd
}

// runOneShot starts an Fx application built from options, runs fn and stops
// the application again.
func runOneShot(ctx context.Context, options []fx.Option, fn func(ctx context.Context) error) error {
	fxApp := fx.New(options...)
	if err := fxApp.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := fxApp.Stop(stopCtx); err != nil {
			logger.Warnf("Failed to stop application cleanly: %v", err)
		}
	}()
	return fn(ctx)
}
