// Package endpoint defines registered webhook destinations and their
// management service.
package endpoint

import (
	"time"

	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

// Endpoint represents a webhook delivery target registered by a tenant.
type Endpoint struct {
	entity.Entity

	// ID is the unique TypeID for this endpoint.
	ID id.ID `json:"id"`

	// TenantID identifies the tenant that owns this endpoint.
	TenantID string `json:"tenant_id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description of this endpoint.
	Description string `json:"description"`

	// Secret is the HMAC signing secret for this endpoint. Never serialized.
	Secret string `json:"-"`

	// EventTypes are glob patterns for event type subscriptions.
	EventTypes []string `json:"event_types"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// Enabled indicates whether the endpoint is active for deliveries.
	// Flipped to false by the delinquency tracker or by an operator; flipping
	// it back is always an explicit administrative action.
	Enabled bool `json:"enabled"`

	// DisabledAt is when the endpoint was last disabled.
	DisabledAt *time.Time `json:"disabled_at,omitempty"`

	// DisabledReason records why the endpoint was disabled (e.g. "delinquent").
	DisabledReason string `json:"disabled_reason,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`
}

// ListOpts configures filtering and pagination for endpoint listing.
type ListOpts struct {
	Offset  int
	Limit   int
	Enabled *bool
}
