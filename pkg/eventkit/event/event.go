package event

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the event kinds the platform emits.
// The set is closed: construction rejects unknown values, so downstream
// dispatch tables can be built per variant instead of matching free-form
// strings at runtime.
type Type string

const (
	ContentUploaded     Type = "content.uploaded"
	ContentApproved     Type = "content.approved"
	ContentRejected     Type = "content.rejected"
	ContentViewed       Type = "content.viewed"
	ModerationFailed    Type = "content.moderation_failed"
	DeviceInteraction   Type = "device.interaction"
	DeviceStatusChanged Type = "device.status_changed"
	PerformanceMetric   Type = "performance.metric"
)

// knownTypes is the membership set behind Type.Valid.
var knownTypes = map[Type]struct{}{
	ContentUploaded:     {},
	ContentApproved:     {},
	ContentRejected:     {},
	ContentViewed:       {},
	ModerationFailed:    {},
	DeviceInteraction:   {},
	DeviceStatusChanged: {},
	PerformanceMetric:   {},
}

// Valid reports whether t is a member of the closed enumeration.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// String returns the wire name of the type.
func (t Type) String() string { return string(t) }

// Types returns all known event types. The order is unspecified.
func Types() []Type {
	out := make([]Type, 0, len(knownTypes))
	for t := range knownTypes {
		out = append(out, t)
	}
	return out
}

// Event is an immutable record of something that happened.
//
// CompanyID is always present (multi-tenant isolation); UserID, DeviceID and
// ContentID are set only when the event relates to those entities. Payload is
// producer-defined and must be JSON-representable for the round-trip contract
// to hold.
type Event struct {
	ID            string         `json:"event_id"`
	Type          Type           `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	CompanyID     string         `json:"company_id"`
	UserID        string         `json:"user_id,omitempty"`
	DeviceID      string         `json:"device_id,omitempty"`
	ContentID     string         `json:"content_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// Option configures event construction.
type Option func(*Event)

// WithID sets a specific event ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(e *Event) { e.ID = id }
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.Timestamp = t }
}

// WithUser attaches the related user ID.
func WithUser(id string) Option {
	return func(e *Event) { e.UserID = id }
}

// WithDevice attaches the related device ID.
func WithDevice(id string) Option {
	return func(e *Event) { e.DeviceID = id }
}

// WithContent attaches the related content ID.
func WithContent(id string) Option {
	return func(e *Event) { e.ContentID = id }
}

// WithPayload sets the producer-defined payload.
func WithPayload(p map[string]any) Option {
	return func(e *Event) { e.Payload = p }
}

// WithCorrelationID links the event to a causal chain.
func WithCorrelationID(id string) Option {
	return func(e *Event) { e.CorrelationID = id }
}

// New constructs a validated event. It returns an error when t is not a
// known type or companyID is empty.
func New(t Type, source, companyID string, opts ...Option) (Event, error) {
	e := Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Source:    source,
		CompanyID: companyID,
	}
	for _, opt := range opts {
		opt(&e)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// NewFromParent constructs an event caused by parent. It inherits the
// parent's company and correlation ID; a parent without a correlation ID
// becomes the root of the chain (its own ID is used).
func NewFromParent(parent Event, t Type, source string, opts ...Option) (Event, error) {
	correlation := parent.CorrelationID
	if correlation == "" {
		correlation = parent.ID
	}
	base := []Option{WithCorrelationID(correlation)}
	return New(t, source, parent.CompanyID, append(base, opts...)...)
}

// Validate checks the construction invariants: known type, non-empty
// company ID, non-empty event ID.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type: %q", e.Type)
	}
	if e.CompanyID == "" {
		return fmt.Errorf("event %s: company_id is required", e.ID)
	}
	if e.ID == "" {
		return fmt.Errorf("event_id is required")
	}
	return nil
}

// Equal reports field-for-field equality with another event. Timestamps are
// compared as instants (locations may differ after a decode round trip);
// payloads are compared structurally, so both sides must hold
// JSON-representable values for the comparison to be meaningful.
func (e Event) Equal(other Event) bool {
	return e.ID == other.ID &&
		e.Type == other.Type &&
		e.Timestamp.Equal(other.Timestamp) &&
		e.Source == other.Source &&
		e.CompanyID == other.CompanyID &&
		e.UserID == other.UserID &&
		e.DeviceID == other.DeviceID &&
		e.ContentID == other.ContentID &&
		e.CorrelationID == other.CorrelationID &&
		payloadEqual(e.Payload, other.Payload)
}

func payloadEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
