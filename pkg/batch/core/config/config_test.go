package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
)

const baseYAML = `
statreg:
  system:
    logging:
      level: ${TEST_STATREG_LEVEL:-DEBUG}
  worker:
    poll_interval: 2s
  sweeper:
    timeout: 10m
  import:
    bulk_size: 50
  datasources:
    register:
      type: sqlite
      database: ":memory:"
  storage:
    uploads:
      type: local
      base_dir: /tmp/uploads
`

func TestLoadAppliesDefaultsYAMLAndEnv(t *testing.T) {
	t.Setenv("STATREG_SWEEPER_INTERVAL", "45s")
	t.Setenv("STATREG_ANALYSIS_MANDATORY_FIELDS", "name,taxRegId")

	cfg, err := config.Load(config.EmbeddedConfig(baseYAML), config.LoadOptions{}, config.NewOsEnvironmentExpander())
	require.NoError(t, err)

	s := cfg.Statreg
	assert.Equal(t, "DEBUG", s.System.Logging.Level)
	assert.Equal(t, 2*time.Second, s.Worker.PollInterval)
	assert.True(t, s.Worker.Enabled)
	assert.Equal(t, 10*time.Minute, s.Sweeper.Timeout)
	assert.Equal(t, 45*time.Second, s.Sweeper.Interval)
	assert.Equal(t, 50, s.Import.BulkSize)
	assert.Equal(t, 100, s.Import.LogBufferSize)
	assert.Equal(t, []string{"name", "taxRegId"}, s.Analysis.MandatoryFields)
	assert.Contains(t, s.Datasources, "register")
	assert.Equal(t, config.EmbeddedConfig(baseYAML), cfg.EmbeddedConfig)
}

func TestLoadOverlaysConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("statreg:\n  import:\n    log_buffer_size: 7\n"), 0o600))

	cfg, err := config.Load(config.EmbeddedConfig(baseYAML), config.LoadOptions{ConfigFile: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Statreg.Import.LogBufferSize)
	assert.Equal(t, 50, cfg.Statreg.Import.BulkSize)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	_, err := config.Load(config.EmbeddedConfig(baseYAML+"\n  metrics:\n    backend: statsd\n"), config.LoadOptions{}, nil)
	assert.Error(t, err)

	_, err = config.Load(config.EmbeddedConfig("statreg:\n  import:\n    datasource: missing\n"), config.LoadOptions{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	t.Setenv("STATREG_IMPORT_BULK_SIZE", "0")
	_, err = config.Load(config.EmbeddedConfig(baseYAML), config.LoadOptions{}, nil)
	assert.Error(t, err)
}

func TestEnvironmentExpanderDefaults(t *testing.T) {
	t.Setenv("TEST_STATREG_HOST", "db.local")
	out, err := config.NewOsEnvironmentExpander().Expand([]byte("a: ${TEST_STATREG_HOST}\nb: ${TEST_STATREG_UNSET:-5432}\nc: ${TEST_STATREG_UNSET}"))
	require.NoError(t, err)
	assert.Equal(t, "a: db.local\nb: 5432\nc: ", string(out))
}

func TestDecodeSection(t *testing.T) {
	type section struct {
		Type    string        `yaml:"type"`
		Port    int           `yaml:"port"`
		Enabled bool          `yaml:"enabled"`
		Timeout time.Duration `yaml:"timeout"`
	}
	var s section
	err := config.DecodeSection(map[string]interface{}{
		"type":    "postgres",
		"port":    "5432",
		"enabled": "true",
		"timeout": "3s",
	}, &s)
	require.NoError(t, err)
	assert.Equal(t, section{Type: "postgres", Port: 5432, Enabled: true, Timeout: 3 * time.Second}, s)
}
