package backend

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures WithRateLimit.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
	// MaxWait bounds the wait for a token. Zero leaves only ctx as the bound.
	MaxWait time.Duration
}

type rateLimitCaller struct {
	next    Caller
	limiter *rate.Limiter
	maxWait time.Duration
}

// WithRateLimit caps the outbound call rate. A caller that cannot get a
// token in time fails with a timeout error. PerSecond <= 0 returns next
// unchanged.
func WithRateLimit(next Caller, cfg RateLimitConfig) Caller {
	if cfg.PerSecond <= 0 {
		return next
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &rateLimitCaller{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst),
		maxWait: cfg.MaxWait,
	}
}

func (r *rateLimitCaller) Rerank(ctx context.Context, req rerank.BackendRequest) (*Call, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Rerank(ctx, req)
}

func (r *rateLimitCaller) wait(ctx context.Context) error {
	waitCtx := ctx
	if r.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.maxWait)
		defer cancel()
	}

	err := r.limiter.Wait(waitCtx)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return rerank.Connection("backend request cancelled", ctx.Err())
	}
	// Wait fails early, without ctx being done, when the deadline would pass first.
	return rerank.Timeout("timed out waiting for backend rate limit", err)
}
