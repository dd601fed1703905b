// Package tracing builds the OpenTelemetry tracer handed to the worker pool.
//
// Setup returns a Tracer and a ShutdownFunc that flushes buffered spans. The
// "stdout" exporter pretty-prints spans, "zipkin" posts them to a collector,
// and "none" returns a no-op tracer so callers never need a nil check.
package tracing
