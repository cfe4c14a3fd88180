// Package proxy orchestrates one rerank request: validate, translate,
// call the backend, translate back.
package proxy

import (
	"context"
	"unicode/utf8"

	"github.com/fyrsmithlabs/rerankd/internal/backend"
	"github.com/fyrsmithlabs/rerankd/internal/logging"
	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/rerankd/internal/proxy"

	// DefaultModel is reported when neither the request nor the
	// configuration names a model.
	DefaultModel = "rerankd"

	maxLoggedBody  = 8 << 10
	maxLoggedTexts = 32
	maxLoggedText  = 256
)

// Options configures a Proxy.
type Options struct {
	// DefaultModel is echoed in responses to requests without a model.
	DefaultModel string
	// Policy holds the static backend fields.
	Policy rerank.Policy
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Proxy translates canonical rerank requests to backend calls. It holds no
// per-request state and is safe for concurrent use.
type Proxy struct {
	caller backend.Caller
	opts   Options
	logger *logging.Logger
	tracer trace.Tracer
}

// New creates a Proxy that sends translated requests to caller.
func New(caller backend.Caller, opts Options, logger *logging.Logger) *Proxy {
	if opts.DefaultModel == "" {
		opts.DefaultModel = DefaultModel
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	return &Proxy{caller: caller, opts: opts, logger: logger, tracer: tracer}
}

// Handle serves one canonical request. Invalid requests fail with a
// validation error before any backend call. Backend and translation
// failures are returned unchanged; there is no partial success.
func (p *Proxy) Handle(ctx context.Context, req *rerank.Request) (resp *rerank.Response, err error) {
	ctx, span := p.tracer.Start(ctx, "proxy.Handle")
	defer span.End()

	model := p.modelFor(req)
	span.SetAttributes(
		attribute.String("rerank.model", model),
		attribute.Int("rerank.documents", len(req.Documents)),
	)

	var call *backend.Call
	var backendReq rerank.BackendRequest
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = rerank.KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, rerank.PublicMessage(err))
		} else {
			span.SetAttributes(attribute.Int("rerank.results", len(resp.Results)))
			ResultsReturned.Observe(float64(len(resp.Results)))
			if call != nil {
				BackendDuration.Observe(call.Duration.Seconds())
			}
		}
		span.SetAttributes(attribute.String("rerank.outcome", outcome))
		RequestsTotal.WithLabelValues(outcome).Inc()
		p.logExchange(ctx, req, model, &backendReq, call, resp, err)
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	backendReq = rerank.ToBackendRequest(req, p.opts.Policy)

	call, err = p.caller.Rerank(ctx, backendReq)
	if err != nil {
		return nil, err
	}

	out := rerank.ToCanonicalResponse(call.Result, req, model)
	return &out, nil
}

func (p *Proxy) modelFor(req *rerank.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.opts.DefaultModel
}

// logExchange writes the single per-request record. The translated request
// and raw backend body are attached whenever they exist, both size-capped.
func (p *Proxy) logExchange(ctx context.Context, req *rerank.Request, model string,
	backendReq *rerank.BackendRequest, call *backend.Call, resp *rerank.Response, err error) {

	fields := []zap.Field{
		zap.String("model", model),
		zap.Int("documents", len(req.Documents)),
	}
	if req.TopN != nil {
		fields = append(fields, zap.Int("top_n", *req.TopN))
	}
	if req.ScoreThreshold != nil {
		fields = append(fields, zap.Float64("score_threshold", *req.ScoreThreshold))
	}
	if call != nil {
		fields = append(fields,
			zap.Int("backend_status", call.Status),
			zap.Duration("backend_duration", call.Duration),
			zap.Int("backend_results", len(call.Result)),
		)
	}
	if resp != nil {
		fields = append(fields, zap.Int("results", len(resp.Results)))
	}

	if backendReq.Texts != nil {
		logged, omitted := capRequest(*backendReq)
		fields = append(fields, zap.Any("backend_request", logged))
		if omitted > 0 {
			fields = append(fields, zap.Int("backend_texts_omitted", omitted))
		}
	}
	if call != nil {
		fields = append(fields, zap.ByteString("backend_response", capBody(call.Body)))
	}

	switch rerank.KindOf(err) {
	case rerank.KindUnknown:
		if err == nil {
			p.logger.Info(ctx, "rerank completed", fields...)
			return
		}
		p.logger.Error(ctx, "rerank failed", append(fields, zap.Error(err))...)
	case rerank.KindValidation:
		p.logger.Info(ctx, "rerank rejected", append(fields, zap.String("reason", rerank.PublicMessage(err)))...)
	default:
		p.logger.Warn(ctx, "rerank failed", append(fields,
			zap.String("kind", rerank.KindOf(err).String()),
			zap.Error(err),
		)...)
	}
}

// capRequest returns a copy of req with at most maxLoggedTexts texts, each
// cut to maxLoggedText bytes, and the number of texts dropped.
func capRequest(req rerank.BackendRequest) (rerank.BackendRequest, int) {
	texts := req.Texts
	omitted := 0
	if len(texts) > maxLoggedTexts {
		omitted = len(texts) - maxLoggedTexts
		texts = texts[:maxLoggedTexts]
	}
	capped := make([]string, len(texts))
	for i, text := range texts {
		capped[i] = capText(text)
	}
	req.Texts = capped
	return req, omitted
}

func capText(s string) string {
	if len(s) <= maxLoggedText {
		return s
	}
	cut := maxLoggedText
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func capBody(b []byte) []byte {
	if len(b) > maxLoggedBody {
		return b[:maxLoggedBody]
	}
	return b
}
