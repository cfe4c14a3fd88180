// Package config provides configuration loading for rerankd.
//
// Configuration is layered: built-in defaults, then an optional YAML or TOML
// file, then environment variables. Environment variables are named
// SECTION_FIELD and map to section.field, for example:
//
//	BACKEND_URL          -> backend.url
//	LISTEN_PORT          -> listen.port
//	REQUEST_TIMEOUT_MS   -> request.timeout_ms
//	BACKEND_RAW_SCORES   -> backend.raw_scores
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
)

// Config holds the complete rerankd configuration.
type Config struct {
	Listen    ListenConfig    `koanf:"listen"`
	Backend   BackendConfig   `koanf:"backend"`
	Request   RequestConfig   `koanf:"request"`
	Proxy     ProxyConfig     `koanf:"proxy"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ListenConfig is where the proxy accepts client traffic.
type ListenConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"` // required
}

// BackendConfig describes the ranking backend and how it is called.
type BackendConfig struct {
	URL    string `koanf:"url"` // required, base URL; /rerank is appended
	APIKey Secret `koanf:"api_key"`

	// Static backend policy, sent with every request.
	Truncate            bool   `koanf:"truncate"`
	TruncationDirection string `koanf:"truncation_direction"`
	RawScores           bool   `koanf:"raw_scores"`

	MaxResponseBytes int64 `koanf:"max_response_bytes"`

	// Opt-in call wrappers. The defaults issue exactly one call per request.
	RetryAttempts   int           `koanf:"retry_attempts"`
	RetryDelay      time.Duration `koanf:"retry_delay"`
	BreakerEnabled  bool          `koanf:"breaker_enabled"`
	BreakerFailures int           `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
	RateLimit       float64       `koanf:"rate_limit"` // requests per second, 0 disables
	RateBurst       int           `koanf:"rate_burst"`
}

// Policy returns the backend policy fields as sent on the wire.
func (b BackendConfig) Policy() rerank.Policy {
	return rerank.Policy{
		Truncate:            b.Truncate,
		TruncationDirection: rerank.TruncationDirection(b.TruncationDirection),
		RawScores:           b.RawScores,
	}
}

// RequestConfig bounds a single proxied request.
type RequestConfig struct {
	TimeoutMS int    `koanf:"timeout_ms"`
	MaxBody   string `koanf:"max_body"` // echo body limit syntax, e.g. "10M"
}

// Timeout returns the outbound call deadline.
func (r RequestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// ProxyConfig holds response shaping settings.
type ProxyConfig struct {
	// DefaultModel is reported when the client sends no model.
	DefaultModel string `koanf:"default_model"`
}

// ServerConfig holds HTTP server lifecycle settings.
type ServerConfig struct {
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// defaults are applied before any file or environment source.
var defaults = map[string]interface{}{
	"listen.host":                  "0.0.0.0",
	"backend.truncate":             true,
	"backend.truncation_direction": string(rerank.TruncateRight),
	"backend.raw_scores":           false,
	"backend.max_response_bytes":   int64(16 << 20),
	"backend.retry_attempts":       1,
	"backend.retry_delay":          "200ms",
	"backend.breaker_enabled":      false,
	"backend.breaker_failures":     5,
	"backend.breaker_timeout":      "30s",
	"backend.rate_limit":           0.0,
	"backend.rate_burst":           1,
	"request.timeout_ms":           30000,
	"request.max_body":             "10M",
	"proxy.default_model":          "rerankd",
	"server.shutdown_timeout":      "10s",
	"log.level":                    "info",
	"log.format":                   "json",
	"telemetry.enabled":            false,
	"telemetry.endpoint":           "localhost:4317",
	"telemetry.protocol":           "grpc",
	"telemetry.insecure":           true,
	"telemetry.service_name":       "rerankd",
	"telemetry.sample_rate":        1.0,
}

// Load loads configuration from defaults and environment variables only.
//
// Example:
//
//	BACKEND_URL=http://localhost:8085 LISTEN_PORT=8086 rerankd
func Load() (*Config, error) {
	k, err := newKoanf()
	if err != nil {
		return nil, err
	}
	if err := loadEnv(k); err != nil {
		return nil, err
	}
	return unmarshal(k)
}

// Validate validates the configuration.
//
// Returns an error if:
//   - backend.url is missing or not an absolute http(s) URL
//   - listen.port is not between 1 and 65535
//   - request.timeout_ms is not positive
//   - backend.truncation_direction is not Left or Right
//   - a call wrapper is enabled with an unusable setting
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url is required (BACKEND_URL)")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend url must be an absolute http(s) URL, got %q", c.Backend.URL)
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen port: %d (must be 1-65535, LISTEN_PORT)", c.Listen.Port)
	}

	if c.Request.TimeoutMS <= 0 {
		return fmt.Errorf("request timeout must be positive, got %dms", c.Request.TimeoutMS)
	}

	if err := c.Backend.Policy().Validate(); err != nil {
		return fmt.Errorf("invalid backend policy: %w", err)
	}

	if c.Backend.MaxResponseBytes <= 0 {
		return errors.New("backend max_response_bytes must be positive")
	}
	if c.Backend.RetryAttempts < 1 {
		return fmt.Errorf("backend retry_attempts must be >= 1, got %d", c.Backend.RetryAttempts)
	}
	if c.Backend.BreakerEnabled && c.Backend.BreakerFailures < 1 {
		return fmt.Errorf("backend breaker_failures must be >= 1, got %d", c.Backend.BreakerFailures)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("backend rate_limit cannot be negative, got %v", c.Backend.RateLimit)
	}
	if c.Backend.RateLimit > 0 && c.Backend.RateBurst < 1 {
		return fmt.Errorf("backend rate_burst must be >= 1 when rate limiting, got %d", c.Backend.RateBurst)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Log.Format)
	}

	return nil
}
