// Package logging provides structured logging for rerankd.
//
// Logger wraps zap and adds, on every call, the correlation fields found in
// the context: trace_id and span_id from the active OpenTelemetry span and
// the request_id set by the HTTP layer.
//
//	cfg, err := logging.NewConfig("info", "json")
//	logger, err := logging.NewLogger(cfg, otelLoggerProvider)
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.Info(ctx, "rerank completed", zap.Int("results", n))
//
// Stdout output passes through a RedactingEncoder that masks fields named
// like credentials (api_key, authorization, ...) and values that look like
// bearer tokens. Entries below error level are sampled; errors never are.
// An OTEL LoggerProvider, when given, receives the same entries through the
// otelzap bridge.
//
// Tests use NewTestLogger, which records entries in memory.
package logging
