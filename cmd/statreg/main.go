package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	config "github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// embeddedConfig holds the default application configuration.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.EmbeddedConfig(embeddedConfig)).ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
