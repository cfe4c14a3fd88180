// Rerankd is an HTTP proxy that serves the canonical rerank API in front of a
// TEI-style ranking backend.
//
// Configuration is loaded from defaults, an optional config file and
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the proxy
//	BACKEND_URL=http://localhost:8085 LISTEN_PORT=8086 rerankd
//
//	# Use a config file
//	rerankd --config /etc/rerankd/config.yaml
//
//	# Print version information
//	rerankd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/rerankd/internal/backend"
	"github.com/fyrsmithlabs/rerankd/internal/config"
	httpserver "github.com/fyrsmithlabs/rerankd/internal/http"
	"github.com/fyrsmithlabs/rerankd/internal/logging"
	"github.com/fyrsmithlabs/rerankd/internal/proxy"
	"github.com/fyrsmithlabs/rerankd/internal/telemetry"
	"go.uber.org/zap"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/rerankd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  rerankd [--config FILE]   Start the rerank proxy\n")
			fmt.Fprintf(os.Stderr, "  rerankd version           Show version information\n")
			os.Exit(1)
		}
	}

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("rerankd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the proxy from a validated cfg and serves until ctx is
// cancelled:
//  1. Telemetry and logger
//  2. Backend client and its opt-in retry, breaker and rate limit wrappers
//  3. Proxy orchestrator and HTTP server
//  4. Graceful shutdown, bounded by cfg.Server.ShutdownTimeout
func run(ctx context.Context, cfg *config.Config) error {
	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if h := tel.Health(); !h.Healthy || h.Degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(h.Err))
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL:          cfg.Backend.URL,
		APIKey:           cfg.Backend.APIKey.Value(),
		Timeout:          cfg.Request.Timeout(),
		MaxResponseBytes: cfg.Backend.MaxResponseBytes,
		Meter:            tel.Meter("github.com/fyrsmithlabs/rerankd/internal/backend"),
	})
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	p := proxy.New(wrapCaller(client, cfg, logger), proxy.Options{
		DefaultModel: cfg.Proxy.DefaultModel,
		Policy:       cfg.Backend.Policy(),
		Tracer:       tel.Tracer("github.com/fyrsmithlabs/rerankd/internal/proxy"),
	}, logger.Named("proxy"))

	srv, err := httpserver.NewServer(p, client, logger.Named("http"), &httpserver.Config{
		Host:      cfg.Listen.Host,
		Port:      cfg.Listen.Port,
		BodyLimit: cfg.Request.MaxBody,
		Version:   version,
		Meter:     tel.Meter("github.com/fyrsmithlabs/rerankd/internal/http"),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info(ctx, "starting rerankd",
		zap.String("version", version),
		zap.String("backend_url", cfg.Backend.URL),
		logging.Secret("backend_api_key", cfg.Backend.APIKey),
		zap.Int("port", cfg.Listen.Port),
		zap.Duration("request_timeout", cfg.Request.Timeout()),
		zap.Int("retry_attempts", cfg.Backend.RetryAttempts),
		zap.Bool("breaker_enabled", cfg.Backend.BreakerEnabled),
		zap.Float64("rate_limit", cfg.Backend.RateLimit),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return errors.Join(errs...)
}

// wrapCaller applies the configured call wrappers. The order, innermost
// first, is rate limit, circuit breaker, retry, so every retry attempt is
// rate limited and seen by the breaker.
func wrapCaller(client *backend.Client, cfg *config.Config, logger *logging.Logger) backend.Caller {
	var caller backend.Caller = client

	caller = backend.WithRateLimit(caller, backend.RateLimitConfig{
		PerSecond: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.RateBurst,
		MaxWait:   cfg.Request.Timeout(),
	})

	if cfg.Backend.BreakerEnabled {
		caller = backend.WithCircuitBreaker(caller, backend.BreakerConfig{
			Failures:    cfg.Backend.BreakerFailures,
			OpenTimeout: cfg.Backend.BreakerTimeout,
			Logger:      logger.Named("breaker"),
		})
	}

	return backend.WithRetry(caller, backend.RetryConfig{
		Attempts: cfg.Backend.RetryAttempts,
		Delay:    cfg.Backend.RetryDelay,
		MaxDelay: cfg.Request.Timeout(),
	}, logger.Named("retry"))
}

func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.SampleRate = cfg.Telemetry.SampleRate
	tc.ShutdownTimeout = cfg.Server.ShutdownTimeout
	return telemetry.New(ctx, tc)
}

func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc, err := logging.NewConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	lp := tel.LoggerProvider()
	lc.Output.OTEL = lp != nil
	return logging.NewLogger(lc, lp)
}
