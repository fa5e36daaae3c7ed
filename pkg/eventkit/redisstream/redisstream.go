// Package redisstream provides Redis Streams implementations of the
// analytics sink and the notification delivery channel, for deployments
// that already run Redis and want downstream consumers to read batches and
// notifications off streams.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/eventkit/pkg/eventkit/analytics"
	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
	"github.com/randalmurphal/eventkit/pkg/eventkit/notification"
)

// Config holds connection and stream settings.
type Config struct {
	// Connection
	Addr     string
	Username string
	Password string
	DB       int

	// AnalyticsStream receives one entry per analytics event.
	AnalyticsStream string

	// NotificationStream receives one entry per notification.
	NotificationStream string

	// MaxLenApprox trims streams approximately to this length (0 = unbounded).
	MaxLenApprox int64
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:               "127.0.0.1:6379",
		DB:                 0,
		AnalyticsStream:    "eventkit:analytics",
		NotificationStream: "eventkit:notifications",
		MaxLenApprox:       100_000,
	}
}

// NewClient creates a Redis client from the config.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Sink writes analytics batches to a Redis stream, one entry per event,
// with the encoded event under the "event" field.
type Sink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Compile-time interface check.
var _ analytics.Sink = (*Sink)(nil)

// NewSink creates a stream-backed analytics sink.
func NewSink(client *redis.Client, cfg Config) *Sink {
	stream := cfg.AnalyticsStream
	if stream == "" {
		stream = Defaults().AnalyticsStream
	}
	return &Sink{client: client, stream: stream, maxLen: cfg.MaxLenApprox}
}

// WriteBatch implements analytics.Sink. The batch is appended in a single
// pipeline round trip.
func (s *Sink) WriteBatch(ctx context.Context, batch []event.Event) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, evt := range batch {
		data, err := event.Encode(evt)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]any{
				"event_id":   evt.ID,
				"event_type": evt.Type.String(),
				"company_id": evt.CompanyID,
				"event":      data,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstream: append batch to %s: %w", s.stream, err)
	}
	return nil
}

// Channel appends notifications to a Redis stream for downstream delivery
// workers.
type Channel struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Compile-time interface check.
var _ notification.Channel = (*Channel)(nil)

// NewChannel creates a stream-backed notification channel.
func NewChannel(client *redis.Client, cfg Config) *Channel {
	stream := cfg.NotificationStream
	if stream == "" {
		stream = Defaults().NotificationStream
	}
	return &Channel{client: client, stream: stream, maxLen: cfg.MaxLenApprox}
}

// Deliver implements notification.Channel.
func (c *Channel) Deliver(ctx context.Context, n notification.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redisstream: encode notification %s: %w", n.ID, err)
	}

	err = c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		MaxLen: c.maxLen,
		Approx: c.maxLen > 0,
		Values: map[string]any{
			"id":         n.ID,
			"company_id": n.CompanyID,
			"kind":       n.Kind,
			"payload":    data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redisstream: append notification to %s: %w", c.stream, err)
	}
	return nil
}
