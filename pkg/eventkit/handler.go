package eventkit

import (
	"context"

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
)

// Handler is a capability that reacts to a subset of event types.
//
// Handle returns nil on success and an error on failure; there is no
// separate boolean result path. Failures are isolated at the dispatch
// boundary: they are logged and counted but never stop the bus or affect
// sibling handlers processing the same event.
//
// Handle may block on external calls (AI providers, storage). Within one
// event's fan-out, handlers run concurrently, so a slow handler does not
// delay its siblings - only the advance to the next event.
type Handler interface {
	// Name identifies the handler; unique within a bus. Subscribing a
	// second handler under the same name replaces the first.
	Name() string

	// Types returns the non-empty set of event types the handler reacts to.
	Types() []event.Type

	// Handle processes one event. It must treat context cancellation as a
	// normal termination path (no partial side effects assumed committed).
	Handle(ctx context.Context, evt event.Event) error
}

// funcHandler adapts a plain function to the Handler interface.
type funcHandler struct {
	name  string
	types []event.Type
	fn    func(ctx context.Context, evt event.Event) error
}

func (h *funcHandler) Name() string                                    { return h.name }
func (h *funcHandler) Types() []event.Type                             { return h.types }
func (h *funcHandler) Handle(ctx context.Context, e event.Event) error { return h.fn(ctx, e) }

// NewHandler wraps a function as a named Handler subscribed to the given types.
func NewHandler(name string, types []event.Type, fn func(ctx context.Context, evt event.Event) error) Handler {
	return &funcHandler{name: name, types: types, fn: fn}
}
