package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Storage       StorageConfig   `yaml:"storage"`
	// LendingConfig points at the TOML file describing pools to create at
	// startup.
	LendingConfig string        `yaml:"lending_config"`
	Indexer       IndexerConfig `yaml:"indexer"`
	Log           LogConfig     `yaml:"log"`
	Telemetry     TelemetryOpts `yaml:"telemetry"`
	Paused        bool          `yaml:"paused"`
}

// IndexerConfig enables the SQL event indexer. Driver is "postgres" or
// "sqlite"; an empty DSN disables indexing.
type IndexerConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig lists the bearer tokens accepted by the API. An empty list
// disables authentication, which is only permitted in the dev environment.
type AuthConfig struct {
	APITokens []string `yaml:"api_tokens"`
}

// RateLimitConfig throttles per-client request rates.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// StorageConfig selects the persistence backend. An empty path keeps all
// state in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LogConfig tunes structured log output.
type LogConfig struct {
	FilePath   string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// TelemetryOpts switches the OTLP exporters on.
type TelemetryOpts struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8660",
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			Burst:             60,
		},
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8660"
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.LendingConfig = strings.TrimSpace(cfg.LendingConfig)
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = "postgres"
	}

	trimmed := cfg.Auth.APITokens[:0]
	for _, token := range cfg.Auth.APITokens {
		if token = strings.TrimSpace(token); token != "" {
			trimmed = append(trimmed, token)
		}
	}
	cfg.Auth.APITokens = trimmed

	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 60
	}
}

func (cfg *Config) validate() error {
	if len(cfg.Auth.APITokens) == 0 && !strings.EqualFold(cfg.Environment, "dev") {
		return fmt.Errorf("auth: api tokens required outside the dev environment")
	}
	if cfg.Indexer.DSN != "" {
		switch cfg.Indexer.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
		}
	}
	return nil
}
