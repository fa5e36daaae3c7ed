// Package analytics buffers view/interaction/performance events and writes
// them to a Sink in batches, flushed by size or by time, whichever comes
// first.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
	"github.com/randalmurphal/eventkit/pkg/eventkit/observability"
)

// Sink persists aggregated analytics batches. Implementations must be safe
// for concurrent use.
type Sink interface {
	WriteBatch(ctx context.Context, batch []event.Event) error
}

// Config configures the analytics handler.
type Config struct {
	// BatchSize triggers a flush when the buffer reaches it.
	// Default: 50
	BatchSize int

	// FlushInterval triggers a flush when it elapses since the previous
	// one, even if the buffer is below BatchSize.
	// Default: 30s
	FlushInterval time.Duration

	// Sink receives flushed batches. Required.
	Sink Sink

	// Logger for flush outcomes. Default: slog.Default()
	Logger *slog.Logger

	// Metrics records flush telemetry. Default: no-op.
	Metrics observability.MetricsRecorder
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	BatchSize:     50,
	FlushInterval: 30 * time.Second,
}

// Handler buffers analytics events and flushes them in batches.
//
// The buffer swap during a flush happens in a single critical section, so
// concurrent Handle calls never observe a half-drained buffer; the sink
// write itself runs outside the lock.
type Handler struct {
	cfg     Config
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu        sync.Mutex
	buffer    []event.Event
	lastFlush time.Time

	done      chan struct{}
	flusherWg sync.WaitGroup
	closeOnce sync.Once
}

// New creates the handler and starts its background interval flusher.
func New(cfg Config) *Handler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig.FlushInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}

	h := &Handler{
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		buffer:    make([]event.Event, 0, cfg.BatchSize),
		lastFlush: time.Now(),
		done:      make(chan struct{}),
	}

	h.flusherWg.Add(1)
	go h.flushLoop()

	return h
}

// Name implements the handler contract.
func (h *Handler) Name() string { return "analytics" }

// Types returns the telemetry event types the handler aggregates.
func (h *Handler) Types() []event.Type {
	return []event.Type{event.ContentViewed, event.DeviceInteraction, event.PerformanceMetric}
}

// Handle appends the event to the buffer and flushes when the size
// threshold is reached.
func (h *Handler) Handle(ctx context.Context, evt event.Event) error {
	h.mu.Lock()
	h.buffer = append(h.buffer, evt)
	var batch []event.Event
	if len(h.buffer) >= h.cfg.BatchSize {
		batch = h.swapLocked()
	}
	h.mu.Unlock()

	if batch == nil {
		return nil
	}
	return h.write(ctx, batch)
}

// Flush writes out whatever is buffered. Used by shutdown and by callers
// that need the buffer durable now.
func (h *Handler) Flush(ctx context.Context) error {
	h.mu.Lock()
	batch := h.swapLocked()
	h.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return h.write(ctx, batch)
}

// swapLocked takes ownership of the buffer and restarts the interval clock.
// Caller holds h.mu.
func (h *Handler) swapLocked() []event.Event {
	if len(h.buffer) == 0 {
		return nil
	}
	batch := h.buffer
	h.buffer = make([]event.Event, 0, h.cfg.BatchSize)
	h.lastFlush = time.Now()
	return batch
}

// write hands a drained batch to the sink.
func (h *Handler) write(ctx context.Context, batch []event.Event) error {
	done := observability.TimedOperation()
	err := h.cfg.Sink.WriteBatch(ctx, batch)
	durationMs := done()

	h.metrics.RecordBatchFlush(ctx, len(batch), time.Duration(durationMs)*time.Millisecond, err)
	observability.LogBatchFlush(h.logger, len(batch), durationMs, err)
	return err
}

// flushLoop performs interval flushes until Close. The interval counts from
// the most recent flush of any kind: a size-triggered flush pushes the next
// timed one out by a full FlushInterval.
func (h *Handler) flushLoop() {
	defer h.flusherWg.Done()

	timer := time.NewTimer(h.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			h.mu.Lock()
			elapsed := time.Since(h.lastFlush)
			h.mu.Unlock()

			if remaining := h.cfg.FlushInterval - elapsed; remaining > 0 {
				timer.Reset(remaining)
				continue
			}
			// Errors are logged inside write; the next interval retries
			// with whatever has accumulated since.
			_ = h.Flush(context.Background())
			timer.Reset(h.cfg.FlushInterval)
		case <-h.done:
			return
		}
	}
}

// BufferLen returns the number of buffered, not-yet-flushed events.
func (h *Handler) BufferLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buffer)
}

// Close stops the interval flusher and flushes the remaining buffer.
func (h *Handler) Close(ctx context.Context) error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		h.flusherWg.Wait()
		err = h.Flush(ctx)
	})
	return err
}
