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

// MetricsRecorder records delivery metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDelivery records one delivery with its duration and outcome.
	RecordDelivery(ctx context.Context, eventType string, duration time.Duration, err error)

	// RecordRetry records a scheduled retry.
	RecordRetry(ctx context.Context, retry int)

	// RecordQueueDepth records the number of events waiting for an identity.
	RecordQueueDepth(ctx context.Context, depth int64)

	// RecordDropped records an accepted event that will not be delivered.
	RecordDropped(ctx context.Context, eventType, reason string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	deliveries      metric.Int64Counter
	deliveryErrors  metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	retries         metric.Int64Counter
	queueDepth      metric.Int64Gauge
	dropped         metric.Int64Counter
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

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("openpanel")

	deliveries, err := meter.Int64Counter("openpanel.delivery.attempts",
		metric.WithDescription("Number of event deliveries"),
	)
	if err != nil {
		return nil, err
	}

	deliveryErrors, err := meter.Int64Counter("openpanel.delivery.errors",
		metric.WithDescription("Number of failed event deliveries"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("openpanel.delivery.latency_ms",
		metric.WithDescription("Event delivery latency in milliseconds, retries included"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("openpanel.retry.count",
		metric.WithDescription("Number of transport retries"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge("openpanel.queue.depth",
		metric.WithDescription("Events waiting for a profile identity"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("openpanel.events.dropped",
		metric.WithDescription("Accepted events that were not delivered"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		deliveries:      deliveries,
		deliveryErrors:  deliveryErrors,
		deliveryLatency: deliveryLatency,
		retries:         retries,
		queueDepth:      queueDepth,
		dropped:         dropped,
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

func (m *otelMetrics) RecordDelivery(ctx context.Context, eventType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))

	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		m.deliveryErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRetry(ctx context.Context, retry int) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.Int("retry", retry)))
}

func (m *otelMetrics) RecordQueueDepth(ctx context.Context, depth int64) {
	m.queueDepth.Record(ctx, depth)
}

func (m *otelMetrics) RecordDropped(ctx context.Context, eventType, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("reason", reason),
	))
}
