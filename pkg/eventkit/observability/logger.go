package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds event context to a logger.
// Returns a new logger with event_id, event_type, and handler fields.
func EnrichLogger(logger *slog.Logger, eventID, eventType, handler string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("handler", handler),
	)
}

// LogDispatchError logs a failed handler invocation. Every failure carries
// the event id, type, and handler name.
func LogDispatchError(logger *slog.Logger, eventID, eventType, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogShutdownTimeout logs handlers still running when the grace period
// elapsed (non-fatal).
func LogShutdownTimeout(logger *slog.Logger, grace time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("shutdown grace period elapsed, cancelling in-flight handlers",
		slog.Duration("grace", grace),
	)
}

// LogBatchFlush logs an analytics batch flush.
func LogBatchFlush(logger *slog.Logger, size int, durationMs float64, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("batch flush failed",
			slog.Int("size", size),
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("batch flushed",
		slog.Int("size", size),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
