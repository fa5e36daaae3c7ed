package eventkit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventkit/pkg/eventkit"
	"github.com/randalmurphal/eventkit/pkg/eventkit/analytics"
	"github.com/randalmurphal/eventkit/pkg/eventkit/config"
	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
	"github.com/randalmurphal/eventkit/pkg/eventkit/moderation"
	"github.com/randalmurphal/eventkit/pkg/eventkit/notification"
)

func TestManagerRequiresModerator(t *testing.T) {
	_, err := eventkit.NewManager(eventkit.ManagerConfig{})
	require.Error(t, err)
}

// TestModerationChain drives the full approve path: upload in, approval
// follow-up out on the same correlation chain.
func TestModerationChain(t *testing.T) {
	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
		Moderator: moderation.Static{Decision: moderation.Decision{Action: moderation.Approve, Confidence: 0.99}},
		StopGrace: time.Second,
	})
	require.NoError(t, err)
	defer mgr.Close(context.Background())

	var mu sync.Mutex
	var approved []event.Event
	err = mgr.Bus().Subscribe(eventkit.NewHandler("approval-watcher", []event.Type{event.ContentApproved},
		func(ctx context.Context, evt event.Event) error {
			mu.Lock()
			approved = append(approved, evt)
			mu.Unlock()
			return nil
		}))
	require.NoError(t, err)

	err = mgr.PublishContentEvent(context.Background(), event.ContentUploaded,
		"content-1", "acme", "user-1", map[string]any{"title": "launch.mp4"}, "c1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(approved) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	follow := approved[0]
	mu.Unlock()
	assert.Equal(t, "c1", follow.CorrelationID)
	assert.Equal(t, "content-1", follow.ContentID)
	assert.Equal(t, "acme", follow.CompanyID)
}

// TestRejectionNotifies drives the reject path end to end: upload in,
// notification out.
func TestRejectionNotifies(t *testing.T) {
	ch := notification.NewMemoryChannel()
	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
		Moderator: moderation.Static{Decision: moderation.Decision{Action: moderation.Reject, Reason: "nsfw"}},
		Channel:   ch,
		StopGrace: time.Second,
	})
	require.NoError(t, err)
	defer mgr.Close(context.Background())

	err = mgr.PublishContentEvent(context.Background(), event.ContentUploaded,
		"content-2", "acme", "user-1", nil, "c2")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(ch.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	n := ch.Sent()[0]
	assert.Equal(t, "c2", n.CorrelationID)
	assert.Equal(t, event.ContentRejected.String(), n.Kind)
	assert.Contains(t, n.Message, "nsfw")
}

func TestAnalyticsThroughManager(t *testing.T) {
	sink := analytics.NewMemorySink()
	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
		Moderator:          moderation.Static{Decision: moderation.Decision{Action: moderation.Approve}},
		Sink:               sink,
		AnalyticsBatchSize: 2,
		StopGrace:          time.Second,
	})
	require.NoError(t, err)
	defer mgr.Close(context.Background())

	for i := 0; i < 2; i++ {
		err := mgr.PublishAnalyticsEvent(context.Background(), event.ContentViewed,
			"acme", "dev-1", "content-1", map[string]any{"seconds": 30.0}, "")
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return sink.Len() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerMetrics(t *testing.T) {
	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
		Moderator: moderation.Static{Decision: moderation.Decision{Action: moderation.Approve}},
		StopGrace: time.Second,
	})
	require.NoError(t, err)
	defer mgr.Close(context.Background())

	// Three default handlers registered.
	assert.Equal(t, 3, mgr.Metrics().HandlersCount)

	err = mgr.PublishAnalyticsEvent(context.Background(), event.PerformanceMetric,
		"acme", "dev-1", "", map[string]any{"fps": 60.0}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mgr.Metrics().Processed >= 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(1), mgr.Metrics().Published)
}

func TestManagerCloseIdempotent(t *testing.T) {
	sink := analytics.NewMemorySink()
	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
		Moderator: moderation.Static{Decision: moderation.Decision{Action: moderation.Approve}},
		Sink:      sink,
		StopGrace: time.Second,
	})
	require.NoError(t, err)

	// Buffered but unflushed telemetry is written out on Close.
	err = mgr.PublishAnalyticsEvent(context.Background(), event.ContentViewed,
		"acme", "dev-1", "", nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mgr.Metrics().Processed >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mgr.Close(context.Background()))
	assert.Equal(t, 1, sink.Len())

	require.NoError(t, mgr.Close(context.Background()))
	assert.Equal(t, eventkit.Stopped, mgr.Bus().State())
}

// slowSink delays each write so a close can overlap in-flight activity.
type slowSink struct {
	delay time.Duration
	mu    sync.Mutex
	total int
}

func (s *slowSink) WriteBatch(_ context.Context, batch []event.Event) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.total += len(batch)
	s.mu.Unlock()
	return nil
}

func (s *slowSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Every event the bus accepts around shutdown must either be rejected at
// Publish or reach the sink; Close must never swallow one silently.
func TestCloseDoesNotDropAcceptedEvents(t *testing.T) {
	sink := &slowSink{delay: 500 * time.Millisecond}
	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
		Moderator:          moderation.Static{Decision: moderation.Decision{Action: moderation.Approve}},
		Sink:               sink,
		AnalyticsBatchSize: 100,
		StopGrace:          2 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, mgr.PublishAnalyticsEvent(context.Background(), event.ContentViewed,
		"acme", "dev-1", "", nil, ""))
	require.Eventually(t, func() bool {
		return mgr.Metrics().Processed >= 1
	}, 2*time.Second, 10*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- mgr.Close(context.Background()) }()

	// Publish while Close is underway: it either fails fast with a closed
	// bus or its event must be part of the final flush.
	time.Sleep(150 * time.Millisecond)
	pubErr := mgr.PublishAnalyticsEvent(context.Background(), event.ContentViewed,
		"acme", "dev-1", "", nil, "")

	require.NoError(t, <-closed)

	want := 1
	if pubErr == nil {
		want = 2
	}
	assert.Equal(t, want, sink.count(), "event accepted during close was never flushed")
}

func TestManagerRejectsInvalidEvent(t *testing.T) {
	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
		Moderator: moderation.Static{Decision: moderation.Decision{Action: moderation.Approve}},
		StopGrace: time.Second,
	})
	require.NoError(t, err)
	defer mgr.Close(context.Background())

	err = mgr.PublishContentEvent(context.Background(), event.ContentUploaded,
		"content-1", "", "", nil, "")
	require.Error(t, err, "missing company must be rejected")
}

func TestManagerConfigFrom(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
queue_size: 64
stop_grace: 2s
metrics: true
analytics:
  batch_size: 7
  flush_interval: 250ms
`))
	require.NoError(t, err)

	mc := eventkit.ManagerConfigFrom(cfg)
	assert.Equal(t, 64, mc.QueueSize)
	assert.Equal(t, 2*time.Second, mc.StopGrace)
	assert.Equal(t, 7, mc.AnalyticsBatchSize)
	assert.Equal(t, 250*time.Millisecond, mc.AnalyticsFlushInterval)
	assert.True(t, mc.EnableMetrics)
	assert.False(t, mc.EnableTracing)

	t.Run("defaults", func(t *testing.T) {
		mc := eventkit.ManagerConfigFrom(config.New(nil))
		assert.Equal(t, eventkit.DefaultBusConfig.QueueSize, mc.QueueSize)
		assert.Equal(t, eventkit.DefaultStopGrace, mc.StopGrace)
		assert.Equal(t, analytics.DefaultConfig.BatchSize, mc.AnalyticsBatchSize)
	})
}
