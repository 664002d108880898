package queue

import (
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/engine/importer"
)

// SchedulerParams defines the dependencies of NewSchedulerProvider.
type SchedulerParams struct {
	fx.In
	Worker  *Worker
	Sweeper *Sweeper
	Cfg     *config.Config
}

// NewSchedulerProvider builds the scheduler with the tasks enabled in cfg.
func NewSchedulerProvider(p SchedulerParams) *Scheduler {
	var tasks []Task
	if p.Cfg.Statreg.Worker.Enabled {
		tasks = append(tasks, Task{Name: "worker", Run: p.Worker.Run})
	}
	if p.Cfg.Statreg.Sweeper.Enabled {
		tasks = append(tasks, Task{Name: "sweeper", Run: p.Sweeper.Run})
	}
	return NewScheduler(tasks...)
}

// RegisterLifecycle starts the scheduler with the application and stops it on shutdown.
func RegisterLifecycle(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
}

// Module provides the worker, the sweeper and the scheduler. The scheduler is
// started by RegisterLifecycle, which the serving application invokes.
var Module = fx.Options(
	fx.Provide(func(p *importer.Processor) JobProcessor { return p }),
	fx.Provide(NewWorker, NewSweeper, NewSchedulerProvider),
)
