package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/rerankd/internal/logging"
	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures WithCircuitBreaker.
type BreakerConfig struct {
	// Failures is the number of consecutive transport failures that open
	// the circuit.
	Failures int
	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
	Logger      *logging.Logger
}

type breakerCaller struct {
	next Caller
	cb   *gobreaker.CircuitBreaker
}

// WithCircuitBreaker fails fast with a connection error while the backend
// is known to be down. Only connection and timeout errors count as
// failures; a backend that answers badly is still up.
func WithCircuitBreaker(next Caller, cfg BreakerConfig) Caller {
	if cfg.Failures < 1 {
		cfg.Failures = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "rerank-backend",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.Failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "backend circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &breakerCaller{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerCaller) Rerank(ctx context.Context, req rerank.BackendRequest) (*Call, error) {
	var call *Call
	_, err := b.cb.Execute(func() (interface{}, error) {
		var err error
		call, err = b.next.Rerank(ctx, req)
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, rerank.Connection("backend circuit open", fmt.Errorf("breaker %s: %w", b.cb.Name(), err))
	}
	return call, err
}
