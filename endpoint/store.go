package endpoint

import (
	"context"

	"github.com/hookpost/hookpost/id"
)

// Store defines the persistence contract for webhook endpoints.
type Store interface {
	// CreateEndpoint persists a new endpoint.
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	// GetEndpoint returns an endpoint by ID.
	GetEndpoint(ctx context.Context, epID id.ID) (*Endpoint, error)

	// UpdateEndpoint modifies an existing endpoint.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	// DeleteEndpoint removes an endpoint. Deliveries and the delinquency
	// record owned by the endpoint are removed with it.
	DeleteEndpoint(ctx context.Context, epID id.ID) error

	// ListEndpoints returns endpoints for a tenant, optionally filtered.
	ListEndpoints(ctx context.Context, tenantID string, opts ListOpts) ([]*Endpoint, error)

	// Resolve finds all enabled endpoints subscribed to an event type for a
	// tenant. This is the hot path — called on every Dispatch.
	Resolve(ctx context.Context, tenantID string, eventType string) ([]*Endpoint, error)

	// SetEnabled enables or disables an endpoint without deleting it, with an
	// optional reason recorded when disabling. Reports whether the flag
	// actually changed, so callers can act exactly once per transition.
	SetEnabled(ctx context.Context, epID id.ID, enabled bool, reason string) (bool, error)
}
