// Package notification turns negative events (rejections, moderation
// failures, device errors) into notification records for downstream
// delivery. The delivery channel itself is an external collaborator.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
)

// Notification is the record handed to a delivery channel.
type Notification struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id"`
	UserID        string    `json:"user_id,omitempty"`
	DeviceID      string    `json:"device_id,omitempty"`
	Kind          string    `json:"kind"`
	Message       string    `json:"message"`
	EventID       string    `json:"event_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Channel delivers notifications. Implementations must be safe for
// concurrent use.
type Channel interface {
	Deliver(ctx context.Context, n Notification) error
}

// MemoryChannel collects notifications in memory for development and tests.
type MemoryChannel struct {
	mu   sync.Mutex
	sent []Notification
}

// Compile-time interface check.
var _ Channel = (*MemoryChannel)(nil)

// NewMemoryChannel creates an empty in-memory channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{}
}

// Deliver implements Channel.
func (c *MemoryChannel) Deliver(_ context.Context, n Notification) error {
	c.mu.Lock()
	c.sent = append(c.sent, n)
	c.mu.Unlock()
	return nil
}

// Sent returns a snapshot of delivered notifications in delivery order.
func (c *MemoryChannel) Sent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

// Handler synthesizes notifications from negative event types.
type Handler struct {
	channel Channel
	logger  *slog.Logger
}

// NewHandler wires the handler to its delivery channel.
func NewHandler(ch Channel, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{channel: ch, logger: logger}
}

// Name implements the handler contract.
func (h *Handler) Name() string { return "notifications" }

// Types returns the negative/error event types the handler reacts to.
func (h *Handler) Types() []event.Type {
	return []event.Type{event.ContentRejected, event.ModerationFailed, event.DeviceStatusChanged}
}

// Handle builds a notification record and hands it to the channel. Device
// status changes only notify when the payload carries an error; healthy
// status transitions are a no-op.
func (h *Handler) Handle(ctx context.Context, evt event.Event) error {
	msg, notify := h.message(evt)
	if !notify {
		return nil
	}

	n := Notification{
		ID:            uuid.New().String(),
		CompanyID:     evt.CompanyID,
		UserID:        evt.UserID,
		DeviceID:      evt.DeviceID,
		Kind:          evt.Type.String(),
		Message:       msg,
		EventID:       evt.ID,
		CorrelationID: evt.CorrelationID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.channel.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver notification for event %s: %w", evt.ID, err)
	}

	h.logger.Debug("notification queued",
		slog.String("notification_id", n.ID),
		slog.String("event_id", evt.ID),
		slog.String("kind", n.Kind),
	)
	return nil
}

// message synthesizes the human-readable text for an event, and reports
// whether the event warrants a notification at all.
func (h *Handler) message(evt event.Event) (string, bool) {
	switch evt.Type {
	case event.ContentRejected:
		reason, _ := evt.Payload["reason"].(string)
		if reason == "" {
			reason = "policy violation"
		}
		return fmt.Sprintf("Content %s was rejected: %s", evt.ContentID, reason), true

	case event.ModerationFailed:
		cause, _ := evt.Payload["error"].(string)
		return fmt.Sprintf("Moderation of content %s failed: %s", evt.ContentID, cause), true

	case event.DeviceStatusChanged:
		status, _ := evt.Payload["status"].(string)
		devErr, _ := evt.Payload["error"].(string)
		if status != "error" && devErr == "" {
			return "", false
		}
		if devErr == "" {
			devErr = "device reported an error state"
		}
		return fmt.Sprintf("Device %s: %s", evt.DeviceID, devErr), true

	default:
		return "", false
	}
}
