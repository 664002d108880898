package progress

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// NewTrackerProvider returns the Redis tracker when redis is enabled and the
// in-memory tracker otherwise.
func NewTrackerProvider(lc fx.Lifecycle, cfg *config.Config) (ports.ProgressTracker, error) {
	rc := cfg.Statreg.Redis
	if !rc.Enabled {
		logger.Debugf("Redis disabled, progress is kept in memory.")
		return NewMemoryTracker(), nil
	}
	client, err := NewRedisClient(context.Background(), rc)
	if err != nil {
		return nil, err
	}
	tracker := NewRedisTracker(client, rc)
	lc.Append(fx.StopHook(tracker.Close))
	logger.Infof("Progress tracker connected to redis at %s.", rc.Addr)
	return tracker, nil
}

// Module provides ports.ProgressTracker.
var Module = fx.Module("progress",
	fx.Provide(NewTrackerProvider),
)
