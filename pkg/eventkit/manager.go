package eventkit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/eventkit/pkg/eventkit/analytics"
	"github.com/randalmurphal/eventkit/pkg/eventkit/config"
	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
	"github.com/randalmurphal/eventkit/pkg/eventkit/moderation"
	"github.com/randalmurphal/eventkit/pkg/eventkit/notification"
	"github.com/randalmurphal/eventkit/pkg/eventkit/observability"
)

// ManagerConfig configures the process-wide event manager.
type ManagerConfig struct {
	// QueueSize bounds the bus queue. Default: 1024
	QueueSize int

	// StopGrace is how long Close waits for in-flight handlers.
	// Default: 5s
	StopGrace time.Duration

	// AnalyticsBatchSize and AnalyticsFlushInterval configure the
	// analytics handler's buffer. Defaults: 50 events / 30s.
	AnalyticsBatchSize     int
	AnalyticsFlushInterval time.Duration

	// Moderator is the external AI-moderation capability. Required.
	Moderator moderation.Moderator

	// Sink receives analytics batches. Default: in-memory sink.
	Sink analytics.Sink

	// Channel delivers notifications. Default: in-memory channel.
	Channel notification.Channel

	// Logger for the bus and handlers. Default: slog.Default()
	Logger *slog.Logger

	// EnableMetrics wires OpenTelemetry metrics (global meter provider).
	EnableMetrics bool

	// EnableTracing wires OpenTelemetry dispatch spans (global tracer provider).
	EnableTracing bool
}

// DefaultStopGrace is the shutdown grace period used when none is configured.
const DefaultStopGrace = 5 * time.Second

// ManagerConfigFrom populates the tunable knobs of a ManagerConfig from a
// loaded configuration file. Capabilities (Moderator, Sink, Channel) and the
// logger are code, not configuration, and are left for the caller to set.
//
// Recognized keys: queue_size, stop_grace, metrics, tracing, and an
// analytics section with batch_size and flush_interval.
func ManagerConfigFrom(c config.Config) ManagerConfig {
	a := c.Sub("analytics")
	return ManagerConfig{
		QueueSize:              c.Int("queue_size", DefaultBusConfig.QueueSize),
		StopGrace:              c.Duration("stop_grace", DefaultStopGrace),
		AnalyticsBatchSize:     a.Int("batch_size", analytics.DefaultConfig.BatchSize),
		AnalyticsFlushInterval: a.Duration("flush_interval", analytics.DefaultConfig.FlushInterval),
		EnableMetrics:          c.Bool("metrics", false),
		EnableTracing:          c.Bool("tracing", false),
	}
}

// Manager is the process-wide façade: it owns the bus, registers the default
// handlers wired to their external capabilities, and exposes the convenience
// publish functions upstream API code uses.
//
// Construct one Manager at process start and pass it by reference to
// whatever needs to publish; there is no package-level singleton. New starts
// the bus; Close is idempotent.
type Manager struct {
	bus       *Bus
	analytics *analytics.Handler
	logger    *slog.Logger
	stopGrace time.Duration
	closeOnce sync.Once
	closeErr  error
}

// NewManager builds the bus, registers the moderation, analytics, and
// notification handlers, and starts processing.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Moderator == nil {
		return nil, errors.New("eventkit: a moderation capability is required")
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = analytics.NewMemorySink()
	}
	if cfg.Channel == nil {
		cfg.Channel = notification.NewMemoryChannel()
	}

	var stats observability.MetricsRecorder = observability.NoopMetrics{}
	if cfg.EnableMetrics {
		stats = observability.NewMetricsRecorder()
	}
	var spans observability.SpanManager = observability.NoopSpanManager{}
	if cfg.EnableTracing {
		spans = observability.NewSpanManager()
	}

	bus := NewBus(BusConfig{
		QueueSize: cfg.QueueSize,
		Logger:    cfg.Logger,
		Metrics:   stats,
		Spans:     spans,
	})

	analyticsHandler := analytics.New(analytics.Config{
		BatchSize:     cfg.AnalyticsBatchSize,
		FlushInterval: cfg.AnalyticsFlushInterval,
		Sink:          cfg.Sink,
		Logger:        cfg.Logger,
		Metrics:       stats,
	})

	handlers := []Handler{
		moderation.NewHandler(cfg.Moderator, bus, cfg.Logger),
		analyticsHandler,
		notification.NewHandler(cfg.Channel, cfg.Logger),
	}
	for _, h := range handlers {
		if err := bus.Subscribe(h); err != nil {
			analyticsHandler.Close(context.Background())
			return nil, err
		}
	}

	if err := bus.Start(); err != nil {
		analyticsHandler.Close(context.Background())
		return nil, err
	}

	return &Manager{
		bus:       bus,
		analytics: analyticsHandler,
		logger:    cfg.Logger,
		stopGrace: cfg.StopGrace,
	}, nil
}

// Bus exposes the underlying bus so upstream code can subscribe additional
// handlers or publish raw events.
func (m *Manager) Bus() *Bus { return m.bus }

// PublishContentEvent builds and publishes a content-domain event.
// Fire-and-forget from the caller's perspective: a nil return means the
// event was accepted, not that downstream handling succeeded.
func (m *Manager) PublishContentEvent(ctx context.Context, t event.Type, contentID, companyID, userID string, payload map[string]any, correlationID string) error {
	evt, err := event.New(t, "content-api", companyID,
		event.WithContent(contentID),
		event.WithUser(userID),
		event.WithPayload(payload),
		event.WithCorrelationID(correlationID),
	)
	if err != nil {
		return err
	}
	return m.bus.Publish(ctx, evt)
}

// PublishAnalyticsEvent builds and publishes a telemetry event.
func (m *Manager) PublishAnalyticsEvent(ctx context.Context, t event.Type, companyID, deviceID, contentID string, metrics map[string]any, correlationID string) error {
	evt, err := event.New(t, "telemetry", companyID,
		event.WithDevice(deviceID),
		event.WithContent(contentID),
		event.WithPayload(metrics),
		event.WithCorrelationID(correlationID),
	)
	if err != nil {
		return err
	}
	return m.bus.Publish(ctx, evt)
}

// Metrics proxies the bus counters for the status surface.
func (m *Manager) Metrics() Metrics {
	return m.bus.Metrics()
}

// Close stops the bus with the configured grace period, then flushes the
// analytics buffer. The bus goes down first so every event a handler
// finished processing is in the buffer before the final flush; the reverse
// order would drop events handled while the flush runs. Safe to call more
// than once.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		if err := m.bus.Stop(m.stopGrace); err != nil {
			m.closeErr = err
		}
		if err := m.analytics.Close(ctx); err != nil {
			m.logger.Error("final analytics flush failed", slog.String("error", err.Error()))
			if m.closeErr == nil {
				m.closeErr = err
			}
		}
	})
	return m.closeErr
}
