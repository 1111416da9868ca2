// Package observability provides structured logging, metrics, and tracing
// for event delivery.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds delivery context to a logger.
// Returns a new logger with delivery_id and event_type fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, id.String(), "track")
//	enriched.Info("sending") // includes delivery_id, event_type
func EnrichLogger(logger *slog.Logger, deliveryID, eventType string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("delivery_id", deliveryID),
		slog.String("event_type", eventType),
	)
}

// LogDeliveryStart logs the start of an event delivery.
func LogDeliveryStart(logger *slog.Logger, deliveryID, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("delivery starting",
		slog.String("delivery_id", deliveryID),
		slog.String("event_type", eventType),
	)
}

// LogDeliveryComplete logs a successful delivery.
func LogDeliveryComplete(logger *slog.Logger, deliveryID, eventType string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("delivery completed",
		slog.String("delivery_id", deliveryID),
		slog.String("event_type", eventType),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDeliveryError logs a delivery that failed after all retries.
func LogDeliveryError(logger *slog.Logger, deliveryID, eventType string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("delivery failed",
		slog.String("delivery_id", deliveryID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRetry logs a scheduled retry.
func LogRetry(logger *slog.Logger, retry int, delay time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("retrying request",
		slog.Int("retry", retry),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// LogQueued logs an event held back until a profile is identified.
func LogQueued(logger *slog.Logger, eventType string, depth int) {
	if logger == nil {
		return
	}
	logger.Debug("event queued",
		slog.String("event_type", eventType),
		slog.Int("queue_depth", depth),
	)
}

// LogReleased logs the queue being drained into the pipeline.
func LogReleased(logger *slog.Logger, count int) {
	if logger == nil {
		return
	}
	logger.Debug("queue released",
		slog.Int("count", count),
	)
}

// LogDropped logs an event that was accepted but never delivered.
func LogDropped(logger *slog.Logger, eventType, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("event dropped",
		slog.String("event_type", eventType),
		slog.String("reason", reason),
	)
}

// LogDeadLetterError logs a dead-letter store failure (non-fatal).
func LogDeadLetterError(logger *slog.Logger, deliveryID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("dead letter save failed",
		slog.String("delivery_id", deliveryID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
