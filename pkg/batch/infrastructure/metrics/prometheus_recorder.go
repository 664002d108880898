// Package metrics holds the metric and tracing backends of the import service.
package metrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/statreg/pkg/batch/core/metrics"
	logger "github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Job Metrics
	jobStartedCounter  *prometheus.CounterVec
	jobStatusCounter   *prometheus.CounterVec
	jobDurationSeconds *prometheus.HistogramVec

	// Record Metrics
	recordOutcomeCounter *prometheus.CounterVec

	// Store Metrics
	logFlushCounter  *prometheus.CounterVec
	logEntryCounter  prometheus.Counter
	sweepResetCount  prometheus.Counter
	operationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder on a private registry. namespace
// prefixes every metric name.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobStartedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_job_started_total",
			Help:      "Total number of claimed import jobs.",
		}, []string{"unit_type"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_job_status_total",
			Help:      "Total number of finished import jobs by terminal status.",
		}, []string{"unit_type", "status"}),
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_job_duration_seconds",
			Help:      "Duration of import jobs from claim to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"unit_type", "status"}),
		recordOutcomeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_record_total",
			Help:      "Total processed records by log status and first code.",
		}, []string{"unit_type", "status", "code"}),
		logFlushCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_log_flush_total",
			Help:      "Total upload log batch writes by result.",
		}, []string{"result"}),
		logEntryCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_log_entries_total",
			Help:      "Total upload log entries written.",
		}),
		sweepResetCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_reset_total",
			Help:      "Total expired claims returned to the queue.",
		}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_operation_duration_seconds",
			Help:      "Duration of pipeline operations such as parse and bulk_flush.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "tags"}),
	}

	registry.MustRegister(
		r.jobStartedCounter,
		r.jobStatusCounter,
		r.jobDurationSeconds,
		r.recordOutcomeCounter,
		r.logFlushCounter,
		r.logEntryCounter,
		r.sweepResetCount,
		r.operationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, job *model.Job) {
	r.jobStartedCounter.WithLabelValues(string(job.UnitType)).Inc()
}

func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, job *model.Job, status model.JobStatus, duration time.Duration) {
	r.jobStatusCounter.WithLabelValues(string(job.UnitType), string(status)).Inc()
	r.jobDurationSeconds.WithLabelValues(string(job.UnitType), string(status)).Observe(duration.Seconds())
	logger.Debugf("Metrics: Job '%s' ended with %s. Duration: %.3fs", job.ID, status, duration.Seconds())
}

func (r *PrometheusRecorder) RecordRecordOutcome(ctx context.Context, unitType model.UnitType, status model.LogStatus, code string) {
	r.recordOutcomeCounter.WithLabelValues(string(unitType), string(status), code).Inc()
}

func (r *PrometheusRecorder) RecordLogFlush(ctx context.Context, count int, err error) {
	if err != nil {
		r.logFlushCounter.WithLabelValues("error").Inc()
		return
	}
	r.logFlushCounter.WithLabelValues("ok").Inc()
	r.logEntryCounter.Add(float64(count))
}

func (r *PrometheusRecorder) RecordSweep(ctx context.Context, reset int64) {
	r.sweepResetCount.Add(float64(reset))
}

// RecordDuration records the execution time of a specific operation. Tags are
// folded into one sorted "k=v,k=v" label to keep the label set fixed.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationSeconds.WithLabelValues(name, joinTags(tags)).Observe(duration.Seconds())
}

func joinTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + tags[k]
	}
	return strings.Join(parts, ",")
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
