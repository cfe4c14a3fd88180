package backend

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fyrsmithlabs/rerankd/internal/logging"
	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"go.uber.org/zap"
)

// RetryConfig configures WithRetry.
type RetryConfig struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Delay is the base back-off, doubled per attempt up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration
}

type retryCaller struct {
	next   Caller
	cfg    RetryConfig
	logger *logging.Logger
}

// WithRetry retries connection and timeout failures. Protocol errors are
// returned at once since the backend did answer. With Attempts <= 1 next is
// returned unchanged.
func WithRetry(next Caller, cfg RetryConfig, logger *logging.Logger) Caller {
	if cfg.Attempts <= 1 {
		return next
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	return &retryCaller{next: next, cfg: cfg, logger: logger}
}

func (r *retryCaller) Rerank(ctx context.Context, req rerank.BackendRequest) (*Call, error) {
	var (
		call    *Call
		lastErr error
	)

	err := retry.Do(
		func() error {
			call, lastErr = r.next.Rerank(ctx, req)
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.cfg.Attempts)),
		retry.Delay(r.cfg.Delay),
		retry.MaxDelay(r.cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn(ctx, "retrying backend call",
				zap.Uint("attempt", n+1),
				zap.String("kind", rerank.KindOf(err).String()),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return call, nil
	}
	if lastErr != nil {
		return call, lastErr
	}
	return nil, classifyTransport(err)
}

// retryable reports whether err is a transport failure worth another try.
// A cancelled inbound request is not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch rerank.KindOf(err) {
	case rerank.KindConnection, rerank.KindTimeout:
		return true
	default:
		return false
	}
}
