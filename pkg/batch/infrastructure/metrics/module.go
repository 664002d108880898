package metrics

import (
	"context"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	metrics "github.com/tigerroll/statreg/pkg/batch/core/metrics"
	logger "github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// NewRecorderProvider builds the MetricRecorder selected by metrics.backend and
// registers its lifecycle.
func NewRecorderProvider(lc fx.Lifecycle, cfg *config.MetricsConfig, tracing *config.TracingConfig) (metrics.MetricRecorder, error) {
	var backend metrics.MetricRecorder
	switch cfg.Backend {
	case "prometheus":
		prom := NewPrometheusRecorder(cfg.Namespace)
		if cfg.ListenAddr != "" {
			server := NewMetricsServer(cfg.ListenAddr, prom.Handler())
			lc.Append(fx.Hook{OnStart: server.Start, OnStop: server.Stop})
		}
		backend = prom
	case "otel":
		exporter, err := NewOTelMetricExporter(context.Background(), cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval))
		rec, err := NewOTelRecorder(reader, tracing.ServiceName)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(rec.Shutdown))
		backend = rec
	default:
		logger.Debugf("Metrics backend is %q, recording nothing.", cfg.Backend)
		return metrics.NewNoOpMetricRecorder(), nil
	}
	logger.Infof("Metrics backend: %s", cfg.Backend)

	if cfg.AsyncBufferSize <= 0 {
		return backend, nil
	}
	async := NewAsyncMetricRecorder(cfg.AsyncBufferSize, backend)
	// Appended after the backend hooks, so it stops first and drains into a live backend.
	lc.Append(fx.StopHook(async.Close))
	return async, nil
}

// NewTracerProvider builds the OpenTelemetry tracer when tracing is enabled and
// the no-op tracer otherwise.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.TracingConfig) (metrics.Tracer, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	exporter, err := NewOTelSpanExporter(context.Background(), cfg.OTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP span exporter: %w", err)
	}
	tracer := NewOpenTelemetryTracer(sdktrace.NewBatchSpanProcessor(exporter), cfg.ServiceName, cfg.SampleRatio)
	lc.Append(fx.StopHook(tracer.Shutdown))
	logger.Infof("Tracing enabled (sample ratio %.2f).", cfg.SampleRatio)
	return tracer, nil
}

// Module provides the configured MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(NewRecorderProvider, NewTracerProvider),
)
