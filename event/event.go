// Package event defines the webhook event submitted for delivery.
package event

import (
	"time"

	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

// Event represents a webhook event submitted for delivery.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// Type is the dot-separated event type name (e.g. "invoice.created").
	Type string `json:"type"`

	// TenantID identifies the tenant that produced this event.
	TenantID string `json:"tenant_id"`

	// Data is the event payload. Validated against JSON Schema if configured.
	Data any `json:"data"`

	// IdempotencyKey deduplicates at-least-once event submission.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
