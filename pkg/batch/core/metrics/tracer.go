package metrics

import (
	"context"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of imports.
type Tracer interface {
	// StartJobSpan starts a span covering the whole job.
	//
	// Returns: A context with the new span set, and a function to end the span.
	//          It is recommended to call the returned function in a defer statement.
	StartJobSpan(ctx context.Context, job *model.Job) (context.Context, func())

	// StartStageSpan starts a child span for one pipeline stage ("parse", "records", "flush").
	StartStageSpan(ctx context.Context, stage string) (context.Context, func())

	// RecordError records an error in the current span.
	//
	// module: The component where the error occurred (e.g., "parser", "save").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	//
	// attributes: Example: `map[string]interface{}{"position": 12, "status": "Error"}`
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
