package eventkit

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
)

var (
	// ErrBusClosed is returned when an operation is attempted on a bus
	// that has already been stopped for good.
	ErrBusClosed = errors.New("eventkit: bus is closed")

	// ErrInvalidHandler is returned by Subscribe when a handler has no
	// name or no subscribed types.
	ErrInvalidHandler = errors.New("eventkit: handler needs a name and at least one event type")
)

// HandlerError wraps a failure raised at the dispatch boundary: a handler
// returned an error or panicked while processing an event. It is logged and
// counted, never propagated to the dispatch loop or sibling handlers.
type HandlerError struct {
	EventID   string
	EventType event.Type
	Handler   string
	Err       error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on event %s (%s): %v", e.Handler, e.EventID, e.EventType, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error { return e.Err }
