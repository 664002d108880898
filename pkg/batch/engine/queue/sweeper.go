package queue

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// SweeperParams defines the dependencies of NewSweeper.
type SweeperParams struct {
	fx.In
	Jobs     repository.JobRepository
	Recorder metrics.MetricRecorder
	Cfg      *config.SweeperConfig
}

// Sweeper returns jobs whose claim outlived the timeout to the queue. A job is
// stuck in InProgress only when its worker died or was stopped mid-file.
type Sweeper struct {
	jobs     repository.JobRepository
	recorder metrics.MetricRecorder
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(p SweeperParams) *Sweeper {
	return &Sweeper{
		jobs:     p.Jobs,
		recorder: p.Recorder,
		interval: p.Cfg.Interval,
		timeout:  p.Cfg.Timeout,
		now:      time.Now,
	}
}

// Sweep resets every InProgress job claimed more than timeout ago.
func (s *Sweeper) Sweep(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-timeout)
	n, err := s.jobs.ResetExpired(ctx, cutoff)
	if err != nil {
		return 0, exception.NewJobError(moduleName, "", "failed to reset expired jobs", err)
	}
	s.recorder.RecordSweep(ctx, n)
	if n > 0 {
		logger.Warnf("Sweeper returned %d expired job(s) to the queue (claimed before %s).", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Run sweeps once at start and then on every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	logger.Infof("Sweeper started, interval %s, timeout %s.", s.interval, s.timeout)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx, s.timeout); err != nil && !exception.IsCancellation(err) {
			logger.Errorf("%s", exception.ExtractErrorMessage(err))
		}
		select {
		case <-ctx.Done():
			logger.Infof("Sweeper stopped.")
			return nil
		case <-ticker.C:
		}
	}
}
