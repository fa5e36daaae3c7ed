// Package event defines the immutable event record that travels the bus.
//
// # Overview
//
// An Event is a value describing something that happened on the platform:
// content was uploaded, a moderation decision was made, a device reported
// telemetry. Events are tagged with a closed Type enumeration and always
// carry the tenant (CompanyID) they belong to.
//
// Events are immutable once created - producers construct them with New or
// NewFromParent and never mutate them afterwards.
//
// # Correlation
//
// Causally related events share a correlation ID:
//
//	upload, _ := event.New(event.ContentUploaded, "api", companyID,
//	    event.WithContent(contentID),
//	    event.WithCorrelationID("c1"))
//
//	// The moderation result inherits "c1".
//	approved, _ := event.NewFromParent(upload, event.ContentApproved, "moderation")
//
// # Wire format
//
// Events marshal to a flat JSON object (timestamps as RFC 3339). Decode is
// the validating counterpart and fails fast with a *SerializationError when
// the input violates the contract; Decode(Encode(e)) reproduces e field for
// field.
package event
