// Package eventkit is the in-process event bus that decouples producers of
// domain events (content uploads, moderation decisions, device telemetry)
// from the handlers that react to them.
//
// # Overview
//
//   - event.Event: immutable record with a closed type enumeration and
//     tenant scoping.
//   - Handler: capability reacting to a subset of event types with a single
//     error-based success/failure contract.
//   - Bus: single dispatcher pulling events in FIFO acceptance order,
//     fanning each one out concurrently to its handlers, and joining the
//     fan-out before advancing.
//   - Manager: process-wide façade owning the bus lifecycle and the three
//     default handlers (AI moderation, analytics batching, notifications).
//
// # Ordering and backpressure
//
// The dispatch loop waits for one event's entire fan-out before popping the
// next, so events reach handlers in the order they were accepted. The cost
// is throughput bounded by the slowest handler of the current event - a
// deliberate built-in backpressure. The queue itself is a bounded channel;
// a full queue blocks Publish rather than growing without limit.
//
// # Failure isolation
//
// A handler error or panic is caught at the dispatch boundary, logged with
// the event id, type, and handler name, and counted in the Failed metric.
// It never stops the loop or affects sibling handlers on the same event.
// Handlers needing retry or escalation publish a new, explicitly typed
// failure event (see the moderation package); the bus has no built-in
// redelivery.
//
// # Typical use
//
//	mgr, err := eventkit.NewManager(eventkit.ManagerConfig{
//	    Moderator: myModerator,
//	    Sink:      sqliteSink,
//	    Channel:   deliveryChannel,
//	})
//	if err != nil { ... }
//	defer mgr.Close(ctx)
//
//	mgr.PublishContentEvent(ctx, event.ContentUploaded, contentID, companyID, userID, payload, correlationID)
package eventkit
