package eventkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
	"github.com/randalmurphal/eventkit/pkg/eventkit/observability"
)

// State is the bus lifecycle state.
type State int32

const (
	// Stopped: no dispatch loop running. Events published while stopped
	// accumulate on the queue and are processed once Start runs.
	Stopped State = iota
	// Running: the dispatch loop is draining the queue.
	Running
	// Draining: Stop was called; no new events are pulled from the queue
	// while the in-flight fan-out finishes.
	Draining
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Metrics is a point-in-time snapshot of the bus counters.
//
// Processed counts (event, handler) attempts, not events: one event matched
// by k handlers adds k to Processed. Failed is the subset of attempts that
// returned an error or panicked. Published counts queue acceptance, which
// happens even while the bus is stopped.
type Metrics struct {
	Published     uint64 `json:"events_published"`
	Processed     uint64 `json:"events_processed"`
	Failed        uint64 `json:"events_failed"`
	QueueSize     int    `json:"queue_size"`
	HandlersCount int    `json:"handlers_count"`
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// QueueSize bounds the pending-event queue. Publish blocks when the
	// queue is full, propagating backpressure to producers.
	// Default: 1024
	QueueSize int

	// Logger for dispatch failures and lifecycle transitions.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records per-attempt telemetry. Default: no-op.
	Metrics observability.MetricsRecorder

	// Spans traces event fan-outs. Default: no-op.
	Spans observability.SpanManager
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	QueueSize: 1024,
}

// Bus is the single in-process dispatcher. It accepts published events,
// fans each one out to all handlers subscribed to its type, and governs the
// running/draining/stopped lifecycle.
//
// The dispatch loop pops events in FIFO acceptance order and waits for the
// entire fan-out of one event before popping the next. The ordering
// guarantee is deliberate: a slow handler throttles the whole bus rather
// than letting events overtake each other.
type Bus struct {
	config BusConfig
	logger *slog.Logger
	stats  observability.MetricsRecorder
	spans  observability.SpanManager

	queue chan event.Event

	// staged holds handler-originated follow-ups that arrived while the
	// queue was full. The loop moves them onto the queue tail between
	// fan-outs, so a publishing handler never blocks the dispatcher that
	// is waiting on it.
	stagedMu sync.Mutex
	staged   []event.Event

	mu     sync.RWMutex
	byType map[event.Type][]*registration
	byName map[string]*registration

	state      atomic.Int32
	terminated atomic.Bool

	published atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64

	drainCh  chan struct{}
	loopDone chan struct{}
	closeCh  chan struct{}

	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
}

// dispatchKey marks contexts handed to handlers so Publish can tell a
// re-entrant follow-up from an external producer.
type dispatchKey struct{}

// registration binds a handler to the types it was subscribed under.
type registration struct {
	handler Handler
	types   []event.Type
}

// NewBus creates a stopped bus. Call Start to begin dispatching.
func NewBus(config BusConfig) *Bus {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultBusConfig.QueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := config.Metrics
	if stats == nil {
		stats = observability.NoopMetrics{}
	}
	spans := config.Spans
	if spans == nil {
		spans = observability.NoopSpanManager{}
	}

	return &Bus{
		config:   config,
		logger:   logger,
		stats:    stats,
		spans:    spans,
		queue:    make(chan event.Event, config.QueueSize),
		byType:   make(map[event.Type][]*registration),
		byName:   make(map[string]*registration),
		drainCh:  make(chan struct{}),
		loopDone: make(chan struct{}),
		closeCh:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (b *Bus) State() State {
	return State(b.state.Load())
}

// Subscribe registers the handler against every type it reports. Subscribing
// a handler whose name is already registered atomically replaces the prior
// registration (idempotent by name).
func (b *Bus) Subscribe(h Handler) error {
	if h == nil || h.Name() == "" || len(h.Types()) == 0 {
		return ErrInvalidHandler
	}
	types := h.Types()
	for _, t := range types {
		if !t.Valid() {
			return ErrInvalidHandler
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.byName[h.Name()]; ok {
		b.removeLocked(prev)
	}

	reg := &registration{handler: h, types: types}
	b.byName[h.Name()] = reg
	for _, t := range types {
		b.byType[t] = append(b.byType[t], reg)
	}
	return nil
}

// Unsubscribe removes the handler registered under name. It returns false
// when no such handler exists.
func (b *Bus) Unsubscribe(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, ok := b.byName[name]
	if !ok {
		return false
	}
	delete(b.byName, name)
	b.removeLocked(reg)
	return true
}

// removeLocked drops reg from every per-type list. Caller holds b.mu.
func (b *Bus) removeLocked(reg *registration) {
	for _, t := range reg.types {
		regs := b.byType[t]
		for i, r := range regs {
			if r == reg {
				b.byType[t] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
		if len(b.byType[t]) == 0 {
			delete(b.byType, t)
		}
	}
}

// Publish enqueues an event. It is accepted regardless of lifecycle state:
// events published while the bus is stopped accumulate and are processed
// once Start runs. Published is incremented at the moment of acceptance,
// not dispatch. When the queue is full, Publish blocks until space frees
// up, the bus stops (ErrBusClosed), or ctx is cancelled.
//
// Publishing from inside a running handler never blocks. The dispatch loop
// is joined on that handler's fan-out, so waiting for queue space here
// would wedge the bus; follow-ups that do not fit are staged and moved onto
// the queue tail between fan-outs. The non-blocking path applies only when
// the handler publishes with the context it received from the bus.
func (b *Bus) Publish(ctx context.Context, evt event.Event) error {
	if b.terminated.Load() {
		return ErrBusClosed
	}
	if err := evt.Validate(); err != nil {
		return err
	}

	if ctx.Value(dispatchKey{}) != nil {
		select {
		case b.queue <- evt:
		default:
			b.stagedMu.Lock()
			b.staged = append(b.staged, evt)
			b.stagedMu.Unlock()
		}
		b.published.Add(1)
		b.stats.RecordPublish(ctx, evt.Type.String())
		return nil
	}

	select {
	case b.queue <- evt:
		b.published.Add(1)
		b.stats.RecordPublish(ctx, evt.Type.String())
		return nil
	case <-b.closeCh:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start transitions the bus to Running and spawns the dispatch loop.
// Calling Start while already running is a no-op. A bus that has been
// stopped for good cannot be restarted.
func (b *Bus) Start() error {
	if b.terminated.Load() {
		return ErrBusClosed
	}
	if !b.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return nil // already running or draining
	}

	b.dispatchCtx, b.dispatchCancel = context.WithCancel(context.Background())
	go b.loop()

	b.logger.Info("event bus started", slog.Int("queue_size", cap(b.queue)))
	return nil
}

// loop is the single dispatcher goroutine: pop one event, fan out to all
// interested handlers, wait for every invocation to finish, repeat.
func (b *Bus) loop() {
	defer close(b.loopDone)
	for {
		b.restage()

		// Prefer draining over popping when both are ready.
		select {
		case <-b.drainCh:
			return
		default:
		}

		select {
		case <-b.drainCh:
			return
		case evt := <-b.queue:
			b.dispatch(evt)
		}
	}
}

// restage moves staged follow-ups onto the queue tail in acceptance order.
// Whatever does not fit stays staged for the next pass; every dispatched
// event frees a slot, so staged events always make progress.
func (b *Bus) restage() {
	b.stagedMu.Lock()
	defer b.stagedMu.Unlock()
	for len(b.staged) > 0 {
		select {
		case b.queue <- b.staged[0]:
			b.staged = b.staged[1:]
		default:
			return
		}
	}
}

// dispatch fans one event out to all handlers subscribed to its type and
// joins the fan-out before returning.
func (b *Bus) dispatch(evt event.Event) {
	b.mu.RLock()
	regs := make([]*registration, len(b.byType[evt.Type]))
	copy(regs, b.byType[evt.Type])
	b.mu.RUnlock()

	if len(regs) == 0 {
		return
	}

	base := context.WithValue(b.dispatchCtx, dispatchKey{}, struct{}{})
	ctx, span := b.spans.StartDispatchSpan(base, evt.ID, evt.Type.String())

	var wg sync.WaitGroup
	for _, reg := range regs {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			b.invoke(ctx, h, evt)
		}(reg.handler)
	}
	wg.Wait()

	b.spans.EndSpanWithError(span, nil)
}

// invoke runs one handler against one event. Failures (error return or
// panic) are logged and counted but never propagate: sibling handlers and
// the dispatch loop are unaffected.
func (b *Bus) invoke(ctx context.Context, h Handler, evt event.Event) {
	hctx, span := b.spans.StartHandlerSpan(ctx, h.Name())
	start := time.Now()

	err := b.safeHandle(hctx, h, evt)
	duration := time.Since(start)

	b.processed.Add(1)
	b.stats.RecordDispatch(hctx, evt.Type.String(), h.Name(), duration, err)
	b.spans.EndSpanWithError(span, err)

	if err != nil {
		b.failed.Add(1)
		herr := &HandlerError{EventID: evt.ID, EventType: evt.Type, Handler: h.Name(), Err: err}
		observability.LogDispatchError(b.logger, evt.ID, evt.Type.String(), h.Name(), herr)
	}
}

// safeHandle converts handler panics into errors.
func (b *Bus) safeHandle(ctx context.Context, h Handler, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				EventID:   evt.ID,
				EventType: evt.Type,
				Handler:   h.Name(),
				Err:       fmt.Errorf("panic recovered: %v", r),
			}
		}
	}()
	return h.Handle(ctx, evt)
}

// Stop transitions the bus to Draining, stops pulling new events, and waits
// up to grace for the in-flight fan-out to finish. Handlers still running
// after the grace period receive context cancellation and are abandoned;
// the bus transitions to Stopped either way. Stop never returns an error
// for a timeout - it is logged and visible in Failed once cancelled
// handlers report errors.
//
// A stopped bus is terminal: Start and Publish return ErrBusClosed afterwards.
func (b *Bus) Stop(grace time.Duration) error {
	if b.terminated.Swap(true) {
		return nil // already stopped
	}

	// Wake producers blocked on a full queue; they return ErrBusClosed.
	close(b.closeCh)

	// Never started: nothing in flight.
	if !b.state.CompareAndSwap(int32(Running), int32(Draining)) {
		b.state.Store(int32(Stopped))
		return nil
	}

	close(b.drainCh)

	select {
	case <-b.loopDone:
	case <-time.After(grace):
		observability.LogShutdownTimeout(b.logger, grace)
		b.dispatchCancel()
		// Give cooperative handlers a brief window to observe cancellation,
		// then abandon the loop goroutine; it exits once the fan-out returns.
		select {
		case <-b.loopDone:
		case <-time.After(100 * time.Millisecond):
		}
	}

	b.dispatchCancel()
	b.state.Store(int32(Stopped))
	b.logger.Info("event bus stopped", slog.Uint64("events_processed", b.processed.Load()))
	return nil
}

// Metrics returns a snapshot of the bus counters. See the Metrics type for
// the per-attempt counting rule.
func (b *Bus) Metrics() Metrics {
	b.mu.RLock()
	handlers := len(b.byName)
	b.mu.RUnlock()

	b.stagedMu.Lock()
	staged := len(b.staged)
	b.stagedMu.Unlock()

	return Metrics{
		Published:     b.published.Load(),
		Processed:     b.processed.Load(),
		Failed:        b.failed.Load(),
		QueueSize:     len(b.queue) + staged,
		HandlersCount: handlers,
	}
}
