// Package http serves the canonical rerank API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/rerankd/internal/logging"
	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Reranker serves one canonical rerank request.
type Reranker interface {
	Handle(ctx context.Context, req *rerank.Request) (*rerank.Response, error)
}

// Pinger reports whether the backend is ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides HTTP endpoints for rerankd.
type Server struct {
	echo     *echo.Echo
	reranker Reranker
	pinger   Pinger
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit caps inbound request bodies, e.g. "10M". Empty disables the cap.
	BodyLimit string
	// Version is reported by GET /health.
	Version string
	// Meter records HTTP metrics; nil uses the global provider.
	Meter metric.Meter
}

// NewServer creates a new HTTP server. pinger may be nil, in which case
// GET /ready always succeeds.
func NewServer(reranker Reranker, pinger Pinger, logger *logging.Logger, cfg *Config) (*Server, error) {
	if reranker == nil {
		return nil, fmt.Errorf("reranker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8086,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		reranker: reranker,
		pinger:   pinger,
		logger:   logger,
		config:   cfg,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(NewHTTPMetrics(cfg.Meter, logger).MetricsMiddleware())
	e.Use(s.requestLogger)
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/rerank", s.handleRerank)
	s.echo.POST("/v1/rerank", s.handleRerank)
}

// requestLogger logs one line per request. Handler errors are rendered here
// so the logged status is the one the client sees.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		s.logger.Info(req.Context(), "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Int64("size", c.Response().Size),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// handleHealth reports liveness only.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

// handleReady reports whether the backend answers its health check.
func (s *Server) handleReady(c echo.Context) error {
	if s.pinger == nil {
		return c.JSON(http.StatusOK, ReadyResponse{Status: "ready"})
	}
	if err := s.pinger.Ping(c.Request().Context()); err != nil {
		s.logger.Warn(c.Request().Context(), "backend not ready", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status: "unavailable",
			Error:  rerank.PublicMessage(err),
		})
	}
	return c.JSON(http.StatusOK, ReadyResponse{Status: "ready"})
}

// handleRerank decodes a canonical request and hands it to the reranker.
// The request context carries inbound cancellation to the backend call.
func (s *Server) handleRerank(c echo.Context) error {
	var req rerank.Request
	if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return rerank.Validation("request body must be a JSON rerank request")
	}

	resp, err := s.reranker.Handle(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// handleError renders every error as {"error": "<message>"}. Only the
// caller-safe message is written; internal causes stay in the logs.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := errorResponse(err)
	if status >= http.StatusInternalServerError && rerank.KindOf(err) == rerank.KindUnknown {
		s.logger.Error(c.Request().Context(), "unhandled error", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(err))
	}
}

func errorResponse(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}
	return rerank.HTTPStatus(err), rerank.PublicMessage(err)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
