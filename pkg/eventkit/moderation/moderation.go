// Package moderation reacts to content uploads by asking an external
// AI-moderation capability for a decision and publishing the outcome as a
// follow-up event on the same correlation chain.
//
// A moderation failure is not an error for the bus: the handler publishes
// content.moderation_failed instead of failing, so downstream handlers
// (notifications) can react. Event chaining is the retry/escalation
// mechanism - the bus never requeues.
package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
)

// Action is the moderation verdict.
type Action string

const (
	Approve Action = "approve"
	Reject  Action = "reject"
)

// Request describes the content under review.
type Request struct {
	ContentID string
	CompanyID string
	UserID    string
	Payload   map[string]any
}

// Decision is the moderation outcome.
type Decision struct {
	Action     Action
	Confidence float64
	Reason     string
}

// Moderator is the external AI-moderation capability. Its internals are not
// part of this module; implementations typically call a provider API.
type Moderator interface {
	Review(ctx context.Context, req Request) (Decision, error)
}

// Publisher accepts follow-up events. *eventkit.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event) error
}

// Static is a Moderator returning a fixed decision. Intended for
// development and tests.
type Static struct {
	Decision Decision
	Err      error
}

// Review implements Moderator.
func (s Static) Review(_ context.Context, _ Request) (Decision, error) {
	return s.Decision, s.Err
}

// Handler subscribes to content.uploaded and publishes the moderation
// outcome.
type Handler struct {
	moderator Moderator
	publisher Publisher
	logger    *slog.Logger
}

// NewHandler wires the handler to its moderator capability and the bus it
// publishes follow-ups on.
func NewHandler(m Moderator, p Publisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{moderator: m, publisher: p, logger: logger}
}

// Name implements the handler contract.
func (h *Handler) Name() string { return "ai-moderation" }

// Types returns the single type the handler reacts to.
func (h *Handler) Types() []event.Type {
	return []event.Type{event.ContentUploaded}
}

// Handle reviews the uploaded content and publishes content.approved or
// content.rejected carrying the upload's correlation ID. When the review
// fails, it publishes content.moderation_failed instead of returning an
// error; only a failure to publish escapes.
func (h *Handler) Handle(ctx context.Context, evt event.Event) error {
	decision, err := h.moderator.Review(ctx, Request{
		ContentID: evt.ContentID,
		CompanyID: evt.CompanyID,
		UserID:    evt.UserID,
		Payload:   evt.Payload,
	})
	if err != nil {
		h.logger.Warn("moderation review failed",
			slog.String("event_id", evt.ID),
			slog.String("content_id", evt.ContentID),
			slog.String("error", err.Error()),
		)
		return h.publishFailure(ctx, evt, err)
	}

	outcome := event.ContentRejected
	if decision.Action == Approve {
		outcome = event.ContentApproved
	}

	follow, err := event.NewFromParent(evt, outcome, "moderation",
		event.WithContent(evt.ContentID),
		event.WithUser(evt.UserID),
		event.WithPayload(map[string]any{
			"confidence": decision.Confidence,
			"reason":     decision.Reason,
		}),
	)
	if err != nil {
		return fmt.Errorf("build moderation outcome: %w", err)
	}

	if err := h.publisher.Publish(ctx, follow); err != nil {
		return h.publishFailure(ctx, evt, fmt.Errorf("publish %s: %w", outcome, err))
	}
	return nil
}

// publishFailure emits content.moderation_failed on the same correlation
// chain. The error is carried in the payload for downstream handlers.
func (h *Handler) publishFailure(ctx context.Context, cause event.Event, reviewErr error) error {
	failed, err := event.NewFromParent(cause, event.ModerationFailed, "moderation",
		event.WithContent(cause.ContentID),
		event.WithUser(cause.UserID),
		event.WithPayload(map[string]any{
			"error": reviewErr.Error(),
		}),
	)
	if err != nil {
		return fmt.Errorf("build moderation failure: %w", err)
	}
	if err := h.publisher.Publish(ctx, failed); err != nil {
		return fmt.Errorf("publish moderation failure: %w", err)
	}
	return nil
}
