// Package config defines the settings of one named database connection.
package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings. Entries live under
// statreg.datasources.<name> and are decoded per connection.
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // "postgres", "mysql" or "sqlite".
	Host     string `yaml:"host"`     // Database host address.
	Port     int    `yaml:"port"`     // Database port number.
	Database string `yaml:"database"` // Database name, or the file path for sqlite.
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema,omitempty"` // search_path for PostgreSQL.
	Sslmode  string `yaml:"sslmode"`
	// Params are appended to the DSN as driver options.
	Params map[string]string `yaml:"params,omitempty"`
	// LogLevel is the SQL log level: "silent", "error", "warn" or "info".
	LogLevel string     `yaml:"log_level"`
	Pool     PoolConfig `yaml:"pool"`
}
