package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"go.opentelemetry.io/otel/metric"
)

const (
	rerankPath = "/rerank"
	healthPath = "/health"

	defaultMaxResponseBytes = 16 << 20
	maxLoggedErrorBody      = 512
)

var (
	// ErrInvalidConfig indicates an unusable client configuration.
	ErrInvalidConfig = errors.New("invalid backend configuration")

	errResponseTooLarge = errors.New("response body exceeds limit")
)

// Caller sends a translated request to a ranking backend.
type Caller interface {
	Rerank(ctx context.Context, req rerank.BackendRequest) (*Call, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req rerank.BackendRequest) (*Call, error)

// Rerank calls f.
func (f CallerFunc) Rerank(ctx context.Context, req rerank.BackendRequest) (*Call, error) {
	return f(ctx, req)
}

// Call is the outcome of one backend exchange. When the backend answered
// but the answer was rejected, Rerank returns both the error and a Call
// carrying the raw body for logging.
type Call struct {
	Result   rerank.BackendResult
	Body     []byte
	Status   int
	Duration time.Duration
}

// Config configures Client.
type Config struct {
	// BaseURL is the backend root; /rerank and /health are appended.
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Headers are added to every request.
	Headers map[string]string

	// Timeout bounds each call, including reading the body. Zero means the
	// caller's context is the only bound.
	Timeout time.Duration

	// MaxResponseBytes caps the accepted body size. Defaults to 16MiB.
	MaxResponseBytes int64

	// HTTPClient defaults to a client with no timeout of its own.
	HTTPClient *http.Client

	// Meter defaults to the global otel meter provider.
	Meter metric.Meter
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.MaxResponseBytes < 0 {
		return fmt.Errorf("%w: negative response limit", ErrInvalidConfig)
	}
	return nil
}

// Client is the HTTP Caller for a TEI-compatible rerank endpoint.
type Client struct {
	config    Config
	http      *http.Client
	rerankURL string
	healthURL string
	metrics   *Metrics
}

// NewClient creates a Client.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.MaxResponseBytes == 0 {
		config.MaxResponseBytes = defaultMaxResponseBytes
	}

	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	base := strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config:    config,
		http:      hc,
		rerankURL: base + rerankPath,
		healthURL: base + healthPath,
		metrics:   NewMetrics(config.Meter),
	}, nil
}

// Rerank posts req to <BaseURL>/rerank and parses the scored result.
func (c *Client) Rerank(ctx context.Context, req rerank.BackendRequest) (call *Call, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordCall(ctx, len(req.Texts), time.Since(start), err)
	}()

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling backend request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rerankURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating backend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := readBounded(resp.Body, c.config.MaxResponseBytes)
	if err != nil {
		if errors.Is(err, errResponseTooLarge) {
			return nil, rerank.Protocol(fmt.Sprintf("backend response exceeds %d bytes", c.config.MaxResponseBytes), err)
		}
		return nil, classifyTransport(err)
	}

	call = &Call{Body: raw, Status: resp.StatusCode, Duration: time.Since(start)}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return call, rerank.Protocol(
			fmt.Sprintf("backend returned HTTP %d", resp.StatusCode),
			fmt.Errorf("body: %s", snippet(raw)),
		)
	}

	result, err := ParseResult(raw)
	if err != nil {
		return call, err
	}
	call.Result = result
	return call, nil
}

// Ping checks GET <BaseURL>/health. Any 2xx answer means ready.
func (c *Client) Ping(ctx context.Context) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rerank.Connection(fmt.Sprintf("backend health check returned HTTP %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

// classifyTransport maps a failed exchange to a timeout or connection error.
// A cancelled inbound request is a connection error: the exchange was cut
// before the backend answered.
func classifyTransport(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return rerank.Timeout("backend request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return rerank.Timeout("backend request timed out", err)
	case errors.Is(err, context.Canceled):
		return rerank.Connection("backend request cancelled", err)
	default:
		return rerank.Connection("backend unreachable", err)
	}
}

func readBounded(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errResponseTooLarge
	}
	return b, nil
}

func snippet(b []byte) string {
	if len(b) > maxLoggedErrorBody {
		return string(b[:maxLoggedErrorBody]) + "..."
	}
	return string(b)
}
