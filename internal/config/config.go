// ABOUTME: Configuration loading and parsing for bugbook
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied to fields left empty in the file
const (
	DefaultBcryptCost   = 10
	DefaultSuspendGrace = 5 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config represents the complete bugbook configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Session     SessionConfig     `yaml:"session"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Workers     WorkersConfig     `yaml:"workers"`
	Views       ViewsConfig       `yaml:"views"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig holds the location of the session file
type SessionConfig struct {
	Path string `yaml:"path"`
}

// CredentialsConfig holds password hashing configuration
type CredentialsConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// WorkersConfig holds worker pool configuration
type WorkersConfig struct {
	PoolSize int `yaml:"pool_size"` // 0 means one per CPU
}

// ViewsConfig holds filtered view timing configuration
type ViewsConfig struct {
	SuspendGrace time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	SuspendGraceRaw string `yaml:"suspend_grace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration storing its files under dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Database:    DatabaseConfig{Path: filepath.Join(dataDir, "bugbook.db")},
		Session:     SessionConfig{Path: filepath.Join(dataDir, "session.toml")},
		Credentials: CredentialsConfig{BcryptCost: DefaultBcryptCost},
		Views: ViewsConfig{
			SuspendGrace:    DefaultSuspendGrace,
			SuspendGraceRaw: DefaultSuspendGrace.String(),
		},
		Logging: LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Write saves the configuration as YAML, creating parent directories.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Session.Path == "" {
		return fmt.Errorf("session.path is required")
	}

	if c.Credentials.BcryptCost < 4 || c.Credentials.BcryptCost > 31 {
		return fmt.Errorf("credentials.bcrypt_cost must be between 4 and 31, got %d", c.Credentials.BcryptCost)
	}

	if c.Workers.PoolSize < 0 {
		return fmt.Errorf("workers.pool_size must not be negative")
	}

	if c.Views.SuspendGrace < 0 {
		return fmt.Errorf("views.suspend_grace must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// applyDefaults fills optional fields that were left empty
func applyDefaults(cfg *Config) {
	if cfg.Credentials.BcryptCost == 0 {
		cfg.Credentials.BcryptCost = DefaultBcryptCost
	}
	if cfg.Views.SuspendGraceRaw == "" {
		cfg.Views.SuspendGrace = DefaultSuspendGrace
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Views.SuspendGraceRaw != "" {
		d, err := time.ParseDuration(cfg.Views.SuspendGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing suspend_grace %q: %w", cfg.Views.SuspendGraceRaw, err)
		}
		cfg.Views.SuspendGrace = d
	}

	return nil
}
