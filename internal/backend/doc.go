// Package backend calls the ranking backend, a text-embeddings-inference
// style service exposing POST /rerank.
//
// Client performs exactly one HTTP call per Rerank and classifies every
// failure as a connection, timeout or backend protocol error (see package
// rerank). Retries, circuit breaking and rate limiting are separate Caller
// decorators that are only installed when configured:
//
//	var c backend.Caller = client
//	c = backend.WithRateLimit(c, backend.RateLimitConfig{PerSecond: 50, Burst: 10})
//	c = backend.WithCircuitBreaker(c, backend.BreakerConfig{Failures: 5, OpenTimeout: 30 * time.Second})
//	c = backend.WithRetry(c, backend.RetryConfig{Attempts: 3, Delay: 200 * time.Millisecond}, logger)
package backend
