// Package observability provides production-grade observability for the
// event bus: structured logging helpers, metrics, and tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records bus telemetry.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records an event accepted onto the queue.
	RecordPublish(ctx context.Context, eventType string)

	// RecordDispatch records one (event, handler) attempt with its duration
	// and error status.
	RecordDispatch(ctx context.Context, eventType, handler string, duration time.Duration, err error)

	// RecordBatchFlush records an analytics batch flush.
	RecordBatchFlush(ctx context.Context, size int, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	published       metric.Int64Counter
	dispatches      metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	dispatchErrors  metric.Int64Counter
	flushes         metric.Int64Counter
	flushSize       metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventkit")

	published, err := meter.Int64Counter("eventkit.events.published",
		metric.WithDescription("Number of events accepted onto the queue"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("eventkit.dispatch.attempts",
		metric.WithDescription("Number of (event, handler) dispatch attempts"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("eventkit.dispatch.latency_ms",
		metric.WithDescription("Handler invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter("eventkit.dispatch.errors",
		metric.WithDescription("Number of failed dispatch attempts"),
	)
	if err != nil {
		return nil, err
	}

	flushes, err := meter.Int64Counter("eventkit.analytics.flushes",
		metric.WithDescription("Number of analytics batch flushes"),
	)
	if err != nil {
		return nil, err
	}

	flushSize, err := meter.Int64Histogram("eventkit.analytics.flush_size",
		metric.WithDescription("Events per analytics batch flush"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		published:       published,
		dispatches:      dispatches,
		dispatchLatency: dispatchLatency,
		dispatchErrors:  dispatchErrors,
		flushes:         flushes,
		flushSize:       flushSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordPublish records an event accepted onto the queue.
func (m *otelMetrics) RecordPublish(ctx context.Context, eventType string) {
	m.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordDispatch records one (event, handler) attempt.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType, handler string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
		attribute.String("handler", handler),
	}

	m.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.dispatchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.dispatchErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordBatchFlush records an analytics batch flush.
func (m *otelMetrics) RecordBatchFlush(ctx context.Context, size int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
	}
	m.flushes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.flushSize.Record(ctx, int64(size), metric.WithAttributes(attrs...))
}
