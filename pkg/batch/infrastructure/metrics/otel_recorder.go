package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/statreg/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/statreg/import"

// OTelRecorder records the import metrics through an OpenTelemetry meter.
type OTelRecorder struct {
	provider *sdkmetric.MeterProvider

	jobStarted    metric.Int64Counter
	jobFinished   metric.Int64Counter
	jobDuration   metric.Float64Histogram
	records       metric.Int64Counter
	logFlushes    metric.Int64Counter
	logEntries    metric.Int64Counter
	sweepResets   metric.Int64Counter
	operationTime metric.Float64Histogram
}

// NewOTelMetricExporter creates the OTLP exporter selected by cfg.Protocol.
func NewOTelMetricExporter(ctx context.Context, cfg config.OTLPConfig) (sdkmetric.Exporter, error) {
	switch cfg.Protocol {
	case "http":
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", cfg.Protocol)
}

// NewOTelRecorder creates a recorder exporting through reader. The caller owns
// the returned recorder's Shutdown.
func NewOTelRecorder(reader sdkmetric.Reader, serviceName string) (*OTelRecorder, error) {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	meter := provider.Meter(instrumentationName)
	r := &OTelRecorder{provider: provider}

	var err error
	if r.jobStarted, err = meter.Int64Counter("import.job.started", metric.WithDescription("Claimed import jobs.")); err != nil {
		return nil, err
	}
	if r.jobFinished, err = meter.Int64Counter("import.job.finished", metric.WithDescription("Finished import jobs by status.")); err != nil {
		return nil, err
	}
	if r.jobDuration, err = meter.Float64Histogram("import.job.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.records, err = meter.Int64Counter("import.records", metric.WithDescription("Processed records by status and code.")); err != nil {
		return nil, err
	}
	if r.logFlushes, err = meter.Int64Counter("upload_log.flushes"); err != nil {
		return nil, err
	}
	if r.logEntries, err = meter.Int64Counter("upload_log.entries"); err != nil {
		return nil, err
	}
	if r.sweepResets, err = meter.Int64Counter("sweeper.resets"); err != nil {
		return nil, err
	}
	if r.operationTime, err = meter.Float64Histogram("import.operation.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelRecorder) RecordJobStart(ctx context.Context, job *model.Job) {
	r.jobStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("unit_type", string(job.UnitType))))
}

func (r *OTelRecorder) RecordJobEnd(ctx context.Context, job *model.Job, status model.JobStatus, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("unit_type", string(job.UnitType)),
		attribute.String("status", string(status)),
	)
	r.jobFinished.Add(ctx, 1, attrs)
	r.jobDuration.Record(ctx, duration.Seconds(), attrs)
}

func (r *OTelRecorder) RecordRecordOutcome(ctx context.Context, unitType model.UnitType, status model.LogStatus, code string) {
	r.records.Add(ctx, 1, metric.WithAttributes(
		attribute.String("unit_type", string(unitType)),
		attribute.String("status", string(status)),
		attribute.String("code", code),
	))
}

func (r *OTelRecorder) RecordLogFlush(ctx context.Context, count int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		r.logEntries.Add(ctx, int64(count))
	}
	r.logFlushes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (r *OTelRecorder) RecordSweep(ctx context.Context, reset int64) {
	r.sweepResets.Add(ctx, reset)
}

func (r *OTelRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationTime.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// Shutdown flushes pending exports and stops the provider.
func (r *OTelRecorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)
