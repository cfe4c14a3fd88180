package backend

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/rerankd/internal/backend"

// Metrics records backend call instruments. Instrument creation failures
// leave the instrument nil, and nil instruments are skipped.
type Metrics struct {
	duration metric.Float64Histogram
	texts    metric.Int64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates instruments on meter, or on the global provider when
// meter is nil.
func NewMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := &Metrics{}

	m.duration, _ = meter.Float64Histogram(
		"rerankd.backend.call_duration_seconds",
		metric.WithDescription("Duration of backend rerank calls, including reading the response"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	m.texts, _ = meter.Int64Histogram(
		"rerankd.backend.texts_per_call",
		metric.WithDescription("Number of texts sent per backend rerank call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	m.errors, _ = meter.Int64Counter(
		"rerankd.backend.errors_total",
		metric.WithDescription("Failed backend rerank calls by error kind"),
		metric.WithUnit("{error}"),
	)
	return m
}

// RecordCall records one backend exchange.
func (m *Metrics) RecordCall(ctx context.Context, texts int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))

	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.texts != nil {
		m.texts.Record(ctx, int64(texts))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", rerank.KindOf(err).String())))
	}
}
