package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Statreg.System.Logging
}

// Module provides *Config and its sections to Fx. The application supplies the
// EmbeddedConfig and, optionally, LoadOptions.
var Module = fx.Options(
	fx.Provide(
		NewConfigProvider,
		NewLoggingConfigProvider,
		func(cfg *Config) *WorkerConfig { return &cfg.Statreg.Worker },
		func(cfg *Config) *SweeperConfig { return &cfg.Statreg.Sweeper },
		func(cfg *Config) *ImportConfig { return &cfg.Statreg.Import },
		func(cfg *Config) *AnalysisConfig { return &cfg.Statreg.Analysis },
		func(cfg *Config) *RedisConfig { return &cfg.Statreg.Redis },
		func(cfg *Config) *NotificationConfig { return &cfg.Statreg.Notification },
		func(cfg *Config) *MetricsConfig { return &cfg.Statreg.Metrics },
		func(cfg *Config) *TracingConfig { return &cfg.Statreg.Tracing },
		func(cfg *Config) *ExportConfig { return &cfg.Statreg.Export },
	),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
