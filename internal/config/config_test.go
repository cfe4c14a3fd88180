package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
)

// configEnv lists every variable the tests touch.
var configEnv = []string{
	"BACKEND_URL", "BACKEND_API_KEY", "BACKEND_TRUNCATE", "BACKEND_TRUNCATION_DIRECTION",
	"BACKEND_RAW_SCORES", "BACKEND_RETRY_ATTEMPTS", "BACKEND_BREAKER_ENABLED",
	"BACKEND_BREAKER_FAILURES", "BACKEND_RATE_LIMIT", "BACKEND_RATE_BURST",
	"LISTEN_PORT", "LISTEN_HOST", "REQUEST_TIMEOUT_MS", "REQUEST_MAX_BODY",
	"PROXY_DEFAULT_MODEL", "SERVER_SHUTDOWN_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
	"TELEMETRY_ENABLED", "TELEMETRY_ENDPOINT",
}

// clearEnv unsets configEnv for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		if val, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, val) })
		}
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "http://localhost:8085")
	t.Setenv("LISTEN_PORT", "8086")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Backend.URL != "http://localhost:8085" {
		t.Errorf("Backend.URL = %q, want http://localhost:8085", cfg.Backend.URL)
	}
	if cfg.Listen.Port != 8086 {
		t.Errorf("Listen.Port = %d, want 8086", cfg.Listen.Port)
	}
	if cfg.Listen.Host != "0.0.0.0" {
		t.Errorf("Listen.Host = %q, want 0.0.0.0", cfg.Listen.Host)
	}
	if cfg.Request.TimeoutMS != 30000 {
		t.Errorf("Request.TimeoutMS = %d, want 30000", cfg.Request.TimeoutMS)
	}
	if cfg.Request.Timeout() != 30*time.Second {
		t.Errorf("Request.Timeout() = %v, want 30s", cfg.Request.Timeout())
	}
	if cfg.Proxy.DefaultModel != "rerankd" {
		t.Errorf("Proxy.DefaultModel = %q, want rerankd", cfg.Proxy.DefaultModel)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Backend.RetryAttempts != 1 {
		t.Errorf("Backend.RetryAttempts = %d, want 1", cfg.Backend.RetryAttempts)
	}
	if cfg.Backend.BreakerEnabled {
		t.Error("Backend.BreakerEnabled should default to false")
	}
	if cfg.Backend.RateLimit != 0 {
		t.Errorf("Backend.RateLimit = %v, want 0", cfg.Backend.RateLimit)
	}

	want := rerank.DefaultPolicy()
	if got := cfg.Backend.Policy(); got != want {
		t.Errorf("Backend.Policy() = %+v, want %+v", got, want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "https://tei.internal:8443")
	t.Setenv("BACKEND_API_KEY", "s3cret")
	t.Setenv("BACKEND_TRUNCATE", "false")
	t.Setenv("BACKEND_TRUNCATION_DIRECTION", "Left")
	t.Setenv("BACKEND_RAW_SCORES", "true")
	t.Setenv("BACKEND_RETRY_ATTEMPTS", "3")
	t.Setenv("BACKEND_RATE_LIMIT", "12.5")
	t.Setenv("BACKEND_RATE_BURST", "4")
	t.Setenv("LISTEN_PORT", "9000")
	t.Setenv("LISTEN_HOST", "127.0.0.1")
	t.Setenv("REQUEST_TIMEOUT_MS", "1500")
	t.Setenv("PROXY_DEFAULT_MODEL", "bge-reranker-base")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Backend.APIKey.Value() != "s3cret" {
		t.Errorf("Backend.APIKey.Value() = %q, want s3cret", cfg.Backend.APIKey.Value())
	}
	policy := cfg.Backend.Policy()
	if policy.Truncate || !policy.RawScores || policy.TruncationDirection != rerank.TruncateLeft {
		t.Errorf("Backend.Policy() = %+v, want truncate=false raw_scores=true direction=Left", policy)
	}
	if cfg.Backend.RetryAttempts != 3 {
		t.Errorf("Backend.RetryAttempts = %d, want 3", cfg.Backend.RetryAttempts)
	}
	if cfg.Backend.RateLimit != 12.5 || cfg.Backend.RateBurst != 4 {
		t.Errorf("rate limit = %v/%d, want 12.5/4", cfg.Backend.RateLimit, cfg.Backend.RateBurst)
	}
	if cfg.Listen.Host != "127.0.0.1" || cfg.Listen.Port != 9000 {
		t.Errorf("Listen = %+v, want 127.0.0.1:9000", cfg.Listen)
	}
	if cfg.Request.Timeout() != 1500*time.Millisecond {
		t.Errorf("Request.Timeout() = %v, want 1.5s", cfg.Request.Timeout())
	}
	if cfg.Proxy.DefaultModel != "bge-reranker-base" {
		t.Errorf("Proxy.DefaultModel = %q", cfg.Proxy.DefaultModel)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_IgnoresUnrelatedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "http://localhost:8085")
	t.Setenv("LISTEN_PORT", "8086")
	t.Setenv("GOFLAGS_EXTRA", "whatever")
	t.Setenv("PATHEXT_VALUE", "x")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Listen: ListenConfig{Host: "0.0.0.0", Port: 8086},
			Backend: BackendConfig{
				URL:                 "http://localhost:8085",
				Truncate:            true,
				TruncationDirection: "Right",
				MaxResponseBytes:    1 << 20,
				RetryAttempts:       1,
				RateBurst:           1,
			},
			Request: RequestConfig{TimeoutMS: 30000, MaxBody: "10M"},
			Proxy:   ProxyConfig{DefaultModel: "rerankd"},
			Server:  ServerConfig{ShutdownTimeout: 10 * time.Second},
			Log:     LogConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing backend url", mutate: func(c *Config) { c.Backend.URL = "" }, wantErr: "BACKEND_URL"},
		{name: "relative backend url", mutate: func(c *Config) { c.Backend.URL = "localhost:8085" }, wantErr: "absolute http(s)"},
		{name: "non-http scheme", mutate: func(c *Config) { c.Backend.URL = "ftp://host" }, wantErr: "absolute http(s)"},
		{name: "missing port", mutate: func(c *Config) { c.Listen.Port = 0 }, wantErr: "LISTEN_PORT"},
		{name: "port too large", mutate: func(c *Config) { c.Listen.Port = 70000 }, wantErr: "invalid listen port"},
		{name: "zero timeout", mutate: func(c *Config) { c.Request.TimeoutMS = 0 }, wantErr: "timeout must be positive"},
		{name: "bad direction", mutate: func(c *Config) { c.Backend.TruncationDirection = "Up" }, wantErr: "truncation_direction"},
		{name: "zero retry attempts", mutate: func(c *Config) { c.Backend.RetryAttempts = 0 }, wantErr: "retry_attempts"},
		{
			name: "breaker without failures",
			mutate: func(c *Config) {
				c.Backend.BreakerEnabled = true
				c.Backend.BreakerFailures = 0
			},
			wantErr: "breaker_failures",
		},
		{name: "negative rate", mutate: func(c *Config) { c.Backend.RateLimit = -1 }, wantErr: "rate_limit"},
		{
			name: "rate without burst",
			mutate: func(c *Config) {
				c.Backend.RateLimit = 5
				c.Backend.RateBurst = 0
			},
			wantErr: "rate_burst",
		},
		{name: "zero shutdown", mutate: func(c *Config) { c.Server.ShutdownTimeout = 0 }, wantErr: "shutdown"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecret_Redacts(t *testing.T) {
	s := Secret("token")
	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q", s.String())
	}
	if s.GoString() != "Secret([REDACTED])" {
		t.Errorf("GoString() = %q", s.GoString())
	}
	b, err := s.MarshalJSON()
	if err != nil || string(b) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON() = %s, %v", b, err)
	}
	if s.Value() != "token" || !s.IsSet() {
		t.Error("Value() should return the raw secret")
	}
	if Secret("").IsSet() {
		t.Error("empty secret should not be set")
	}
}
