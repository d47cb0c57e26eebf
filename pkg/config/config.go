// Package config loads the client configuration from YAML, an optional .env
// file and TRAVELINTEL_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/travelintel/internal/observability"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/session"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
	"github.com/aixgo-dev/travelintel/pkg/telemetry/outbox"
)

// MaxFileSize caps the size of a config file.
const MaxFileSize = 1 << 20

// DefaultBaseURL is the travel API used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// Environment overrides.
const (
	EnvBaseURL       = "TRAVELINTEL_API_BASE_URL"
	EnvSessionStore  = "TRAVELINTEL_SESSION_STORE"
	EnvRedisAddr     = "TRAVELINTEL_REDIS_ADDR"
	EnvLogLevel      = "TRAVELINTEL_LOG_LEVEL"
	EnvOutboxEnabled = "TRAVELINTEL_OUTBOX_ENABLED"
)

// Config represents the client configuration
type Config struct {
	API             APIConfig             `yaml:"api"`
	Session         session.Config        `yaml:"session"`
	Telemetry       TelemetryConfig       `yaml:"telemetry"`
	Personalization PersonalizationConfig `yaml:"personalization"`
	Logging         metrics.LogConfig     `yaml:"logging"`
	Observability   ObservabilityConfig   `yaml:"observability"`
}

// APIConfig locates the travel backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig tunes the event buffer.
type TelemetryConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
	Outbox        OutboxConfig  `yaml:"outbox"`
}

// OutboxConfig enables durable delivery. Off by default.
type OutboxConfig struct {
	Enabled bool               `yaml:"enabled"`
	Path    string             `yaml:"path"`
	Relay   outbox.RelayConfig `yaml:"relay"`
}

// PersonalizationConfig tunes personalization requests.
type PersonalizationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	MetricsAddr string               `yaml:"metrics_addr"`
	Tracing     observability.Config `yaml:"tracing"`
}

// DataDir returns the directory holding local client state.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".travelintel"
	}
	return filepath.Join(home, ".travelintel")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: 10 * time.Second,
		},
		Session: session.DefaultConfig(),
		Telemetry: TelemetryConfig{
			FlushInterval: telemetry.DefaultFlushInterval,
			SendTimeout:   telemetry.DefaultSendTimeout,
			Outbox: OutboxConfig{
				Path:  filepath.Join(DataDir(), "outbox.db"),
				Relay: outbox.DefaultRelayConfig(),
			},
		},
		Personalization: PersonalizationConfig{
			Timeout: 10 * time.Second,
		},
		Logging: metrics.LogConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			Tracing: observability.Config{
				ServiceName: observability.DefaultServiceName,
				Exporter:    "none",
			},
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if info.Size() > MaxFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeYAML(data, cfg, DefaultLimits()); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TRAVELINTEL_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvSessionStore); v != "" {
		c.Session.Store = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Session.Redis.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvOutboxEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvOutboxEnabled, err)
		}
		c.Telemetry.Outbox.Enabled = enabled
	}
	return nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	switch c.Session.Store {
	case "", session.StoreFile, session.StoreMemory:
	case session.StoreRedis:
		if c.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required when session.store is redis")
		}
	default:
		return fmt.Errorf("unknown session.store %q", c.Session.Store)
	}

	if c.Telemetry.FlushInterval <= 0 {
		return fmt.Errorf("telemetry.flush_interval must be positive")
	}
	if c.Telemetry.Outbox.Enabled && c.Telemetry.Outbox.Path == "" {
		return fmt.Errorf("telemetry.outbox.path is required when the outbox is enabled")
	}

	if _, err := metrics.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}

	switch c.Observability.Tracing.Exporter {
	case "", "none", "otlp", "stdout":
	default:
		return fmt.Errorf("unknown observability.tracing.exporter %q", c.Observability.Tracing.Exporter)
	}

	return nil
}
