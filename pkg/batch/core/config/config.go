// Package config provides the configuration model of the import service and its loader.
package config

import "time"

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go
// where it is compiled into the binary with go:embed.
type EmbeddedConfig []byte

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL debug info warn error fatal"`
	// Format is "text" or "json".
	Format string `yaml:"format" env:"FORMAT" validate:"omitempty,oneof=text json"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Bishkek").
	Timezone string        `yaml:"timezone" env:"TIMEZONE"`
	Logging  LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`
}

// WorkerConfig configures the queue worker.
type WorkerConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// PollInterval is the pause between two dequeue attempts.
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL" validate:"gt=0"`
}

// SweeperConfig configures the cleanup sweeper.
type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL" validate:"gt=0"`
	// Timeout is the lease: an InProgress job older than this is returned to Pending.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
}

// ImportConfig configures the per-job pipeline.
type ImportConfig struct {
	// BulkSize is the number of drafts buffered before a bulk upsert. 1 disables buffering.
	BulkSize int `yaml:"bulk_size" env:"BULK_SIZE" validate:"gte=1"`
	// LogBufferSize is the number of upload log entries written per batch.
	LogBufferSize int `yaml:"log_buffer_size" env:"LOG_BUFFER_SIZE" validate:"gte=1"`
	// Datasource is the name of the database connection under `datasources`.
	Datasource string `yaml:"datasource" env:"DATASOURCE" validate:"required"`
	// Storage is the default storage connection for jobs without a storage ref.
	Storage string `yaml:"storage" env:"STORAGE" validate:"required"`
}

// AnalysisConfig configures the built-in rule set.
type AnalysisConfig struct {
	// MandatoryFields lists target fields that must be non-empty.
	MandatoryFields []string `yaml:"mandatory_fields" env:"MANDATORY_FIELDS" envSeparator:","`
	// FieldFormats maps a target field to a validator tag, e.g. email: "omitempty,email".
	FieldFormats map[string]string `yaml:"field_formats"`
	// FormatSeverity is the severity of format violations: "warning" or "error".
	FormatSeverity  string `yaml:"format_severity" env:"FORMAT_SEVERITY" validate:"oneof=warning error"`
	DateConsistency bool   `yaml:"date_consistency" env:"DATE_CONSISTENCY"`
	DuplicateCheck  bool   `yaml:"duplicate_check" env:"DUPLICATE_CHECK"`
}

// RedisConfig configures the progress tracker.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Addr      string        `yaml:"addr" env:"ADDR" validate:"required_if=Enabled true"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// AMQPConfig configures the AMQP notifier.
type AMQPConfig struct {
	URL        string `yaml:"url" env:"URL"`
	Exchange   string `yaml:"exchange" env:"EXCHANGE"`
	RoutingKey string `yaml:"routing_key" env:"ROUTING_KEY"`
}

// NotificationConfig selects how job completion is announced.
type NotificationConfig struct {
	// Type is "log" or "amqp".
	Type string     `yaml:"type" env:"TYPE" validate:"oneof=log amqp"`
	AMQP AMQPConfig `yaml:"amqp" envPrefix:"AMQP_"`
}

// OTLPConfig holds the settings of an OTLP exporter.
type OTLPConfig struct {
	// Protocol is "grpc" or "http".
	Protocol string `yaml:"protocol" env:"PROTOCOL" validate:"omitempty,oneof=grpc http"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Insecure bool   `yaml:"insecure" env:"INSECURE"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "prometheus", "otel" or "none".
	Backend string `yaml:"backend" env:"BACKEND" validate:"oneof=prometheus otel none"`
	// ListenAddr is where the Prometheus handler is served; empty disables the endpoint.
	ListenAddr     string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	Namespace      string        `yaml:"namespace" env:"NAMESPACE"`
	ExportInterval time.Duration `yaml:"export_interval" env:"EXPORT_INTERVAL"`
	// AsyncBufferSize is the queue length of the asynchronous recorder; 0 records synchronously.
	AsyncBufferSize int        `yaml:"async_buffer_size" env:"ASYNC_BUFFER_SIZE" validate:"gte=0"`
	OTLP            OTLPConfig `yaml:"otlp" envPrefix:"OTLP_"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool       `yaml:"enabled" env:"ENABLED"`
	ServiceName string     `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64    `yaml:"sample_ratio" env:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	OTLP        OTLPConfig `yaml:"otlp" envPrefix:"OTLP_"`
}

// ExportConfig configures the Parquet export of upload logs.
type ExportConfig struct {
	// Storage is the storage connection exports are written to.
	Storage string `yaml:"storage" env:"STORAGE"`
	// BaseDir is the object prefix of exported files.
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Compression is "SNAPPY", "GZIP" or "NONE".
	Compression string `yaml:"compression" env:"COMPRESSION" validate:"omitempty,oneof=SNAPPY GZIP NONE snappy gzip none"`
}

// StatregConfig holds all configuration under the "statreg" top-level key.
type StatregConfig struct {
	System       SystemConfig       `yaml:"system" envPrefix:"SYSTEM_"`
	Worker       WorkerConfig       `yaml:"worker" envPrefix:"WORKER_"`
	Sweeper      SweeperConfig      `yaml:"sweeper" envPrefix:"SWEEPER_"`
	Import       ImportConfig       `yaml:"import" envPrefix:"IMPORT_"`
	Analysis     AnalysisConfig     `yaml:"analysis" envPrefix:"ANALYSIS_"`
	Redis        RedisConfig        `yaml:"redis" envPrefix:"REDIS_"`
	Notification NotificationConfig `yaml:"notification" envPrefix:"NOTIFICATION_"`
	Metrics      MetricsConfig      `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing      TracingConfig      `yaml:"tracing" envPrefix:"TRACING_"`
	Export       ExportConfig       `yaml:"export" envPrefix:"EXPORT_"`
	// Datasources holds raw database connection settings keyed by name.
	// They are decoded by the database adapter with DecodeSection.
	Datasources map[string]interface{} `yaml:"datasources"`
	// Storage holds raw storage connection settings keyed by name.
	Storage map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Statreg StatregConfig `yaml:"statreg" envPrefix:"STATREG_"`
	// EmbeddedConfig holds the raw embedded YAML the config was built from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Statreg: StatregConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "text"},
			},
			Worker: WorkerConfig{
				Enabled:      true,
				PollInterval: 5 * time.Second,
			},
			Sweeper: SweeperConfig{
				Enabled:  true,
				Interval: time.Minute,
				Timeout:  30 * time.Minute,
			},
			Import: ImportConfig{
				BulkSize:      1,
				LogBufferSize: 100,
				Datasource:    "register",
				Storage:       "uploads",
			},
			Analysis: AnalysisConfig{
				MandatoryFields: []string{"name"},
				FieldFormats:    map[string]string{},
				FormatSeverity:  "warning",
			},
			Redis: RedisConfig{
				KeyPrefix: "statreg",
				TTL:       24 * time.Hour,
			},
			Notification: NotificationConfig{Type: "log"},
			Metrics: MetricsConfig{
				Backend:         "prometheus",
				Namespace:       "statreg",
				ExportInterval:  30 * time.Second,
				AsyncBufferSize: 1024,
			},
			Tracing: TracingConfig{
				ServiceName: "statreg-import",
				SampleRatio: 1,
			},
			Export: ExportConfig{
				Storage:     "uploads",
				BaseDir:     "exports",
				Compression: "SNAPPY",
			},
			Datasources: map[string]interface{}{},
			Storage:     map[string]interface{}{},
		},
	}
}
