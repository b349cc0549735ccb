package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendBadger = "badger"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// StorageConfig selects and configures the root store
type StorageConfig struct {
	Backend     string        `yaml:"backend"`
	DataDir     string        `yaml:"data_dir"`
	SyncWrites  bool          `yaml:"sync_writes"`
	Checksum    bool          `yaml:"checksum"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// CatalogConfig holds catalog limits
type CatalogConfig struct {
	MaxScopeDepth int `yaml:"max_scope_depth"`
	MaxNameLength int `yaml:"max_name_length"`
	MaxColumns    int `yaml:"max_columns"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration of an engine
type Config struct {
	InstanceID string        `yaml:"instance_id"`
	Storage    StorageConfig `yaml:"storage"`
	Catalog    CatalogConfig `yaml:"catalog"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Logging    LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a file. Environment variables
// override file values.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvironmentOverrides(&cfg)

	// Set defaults if not specified
	setDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.InstanceID = host
		} else {
			cfg.InstanceID = "cozo"
		}
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendBadger
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/cozo"
	}
	if cfg.Storage.OpenTimeout == 0 {
		cfg.Storage.OpenTimeout = time.Second
	}

	if cfg.Catalog.MaxScopeDepth == 0 {
		cfg.Catalog.MaxScopeDepth = 1024
	}
	if cfg.Catalog.MaxNameLength == 0 {
		cfg.Catalog.MaxNameLength = 255
	}
	if cfg.Catalog.MaxColumns == 0 {
		cfg.Catalog.MaxColumns = 1024
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvironmentOverrides applies COZO_* environment variables
func applyEnvironmentOverrides(cfg *Config) {
	if id := os.Getenv("COZO_INSTANCE_ID"); id != "" {
		cfg.InstanceID = id
	}
	if dir := os.Getenv("COZO_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if backend := os.Getenv("COZO_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if level := os.Getenv("COZO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if port := os.Getenv("COZO_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Metrics.Port = p
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of %s, %s, %s", BackendBadger, BackendBolt, BackendMemory)
	}
	if c.Storage.Backend != BackendMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required for the %s backend", c.Storage.Backend)
	}
	if c.Catalog.MaxScopeDepth < 1 {
		return fmt.Errorf("catalog.max_scope_depth must be positive")
	}
	if c.Catalog.MaxNameLength < 1 {
		return fmt.Errorf("catalog.max_name_length must be positive")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}
