package metrics

import (
	"go.uber.org/fx"
)

// NoOpModule provides the no-op recorder and tracer, for commands that do not
// report metrics.
var NoOpModule = fx.Options(
	fx.Provide(NewNoOpMetricRecorder, NewNoOpTracer),
)
