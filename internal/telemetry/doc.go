// Package telemetry provides OpenTelemetry tracing and metrics for rerankd.
//
// New builds OTLP exporters (grpc or http/protobuf) from Config and installs
// the providers as otel globals. Instrumented packages obtain tracers and
// meters from a *Telemetry, which falls back to the global no-op providers
// when export is disabled or an exporter failed to start.
//
//	tel, err := telemetry.New(ctx, cfg)
//	defer tel.Shutdown(context.Background())
//	tracer := tel.Tracer("github.com/fyrsmithlabs/rerankd/internal/proxy")
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
