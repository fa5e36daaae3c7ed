package event

import (
	"encoding/json"
	"fmt"
)

// SerializationError indicates malformed wire input: not valid JSON, or a
// decoded event that violates the construction invariants. It is surfaced to
// the caller rather than swallowed, since it means a producer/consumer
// contract violation.
type SerializationError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event decode: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("event decode: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error { return e.Err }

// Encode marshals the event to its JSON wire form. Timestamps serialize as
// RFC 3339 with nanosecond precision.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("event %s: encode: %w", e.ID, err)
	}
	return data, nil
}

// Decode unmarshals and validates an event from its JSON wire form.
// Decode(Encode(e)) reproduces e field for field (the round-trip law).
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, &SerializationError{Message: "invalid json", Err: err}
	}
	if err := e.Validate(); err != nil {
		return Event{}, &SerializationError{Message: "invalid event", Err: err}
	}
	return e, nil
}
