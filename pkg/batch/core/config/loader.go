package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

var validate = validator.New()

// LoadOptions controls where configuration is read from besides the embedded YAML.
type LoadOptions struct {
	// EnvFile is a .env file to load; empty means "./.env" if present.
	EnvFile string
	// ConfigFile is an optional YAML file layered over the embedded config.
	ConfigFile string
}

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	Options        LoadOptions `optional:"true"`
	Expander       EnvironmentExpander
}

// Load builds the configuration in layers: defaults, embedded YAML, optional YAML
// file, then STATREG_* environment variables. ${VAR} placeholders in YAML are expanded
// before parsing. The result is validated.
func Load(embedded EmbeddedConfig, opts LoadOptions, expander EnvironmentExpander) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", opts.EnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()
	if err := unmarshalInto(cfg, embedded, expander); err != nil {
		return nil, exception.NewJobError(moduleName, "", "failed to unmarshal embedded config", err)
	}
	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, exception.NewJobError(moduleName, "", fmt.Sprintf("failed to read config file %s", opts.ConfigFile), err)
		}
		if err := unmarshalInto(cfg, data, expander); err != nil {
			return nil, exception.NewJobError(moduleName, "", fmt.Sprintf("failed to unmarshal config file %s", opts.ConfigFile), err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, exception.NewJobError(moduleName, "", "failed to load config from environment variables", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.EmbeddedConfig = embedded
	return cfg, nil
}

// unmarshalInto decodes YAML over an already populated config, so keys absent from
// the document keep their previous value.
func unmarshalInto(cfg *Config, data []byte, expander EnvironmentExpander) error {
	if len(data) == 0 {
		return nil
	}
	expanded, err := expander.Expand(data)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(expanded, cfg)
}

// Validate checks struct constraints and the cross-section references.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return exception.NewJobError(moduleName, "", "invalid configuration", err)
	}
	s := cfg.Statreg
	if _, ok := s.Datasources[s.Import.Datasource]; !ok {
		return exception.NewJobError(moduleName, "", fmt.Sprintf("import.datasource %q is not defined under datasources", s.Import.Datasource), nil)
	}
	if _, ok := s.Storage[s.Import.Storage]; !ok {
		return exception.NewJobError(moduleName, "", fmt.Sprintf("import.storage %q is not defined under storage", s.Import.Storage), nil)
	}
	if s.Notification.Type == "amqp" && s.Notification.AMQP.URL == "" {
		return exception.NewJobError(moduleName, "", "notification.amqp.url is required for the amqp notifier", nil)
	}
	return nil
}

// NewConfigProvider is an Fx provider that loads *Config and applies the logging settings.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := Load(params.EmbeddedConfig, params.Options, params.Expander)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Statreg.System.Logging.Level)
	logger.SetFormat(cfg.Statreg.System.Logging.Format)
	logger.Debugf("Log level set to: %s", cfg.Statreg.System.Logging.Level)
	return cfg, nil
}

// DecodeSection binds one raw adaptor section (a datasource or storage entry) onto
// a typed struct using its yaml tags. Strings are converted to numbers and booleans.
func DecodeSection(raw interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "yaml",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind section to %s: %w", targetType.Name(), err)
	}
	return nil
}
