// Package telemetry owns the process's OpenTelemetry trace, metric and log
// providers.
//
// The indexer records a span per run and per pipeline stage, and the store,
// embedding and search layers add their own. With telemetry enabled, spans,
// metrics and log records are exported over OTLP, gRPC by default or
// http/protobuf:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "otel-collector.internal:4317"
//	  protocol: "grpc"
//	  headers:
//	    x-api-key: "..."
//	  sample_rate: 0.25
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//	  logs:
//	    enabled: true
//
// Telemetry is off by default and never fails its caller: an exporter that
// cannot be built leaves the instance degraded, with the global no-op
// providers in place.
//
// Tests record spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install()
//	...
//	tt.AssertSpanExists(t, "pipeline.Run")
package telemetry
