package delivery

import (
	"context"
	"time"

	"github.com/hookpost/hookpost/id"
)

// Store defines the persistence contract for webhook deliveries.
type Store interface {
	// Enqueue creates a pending delivery. Returns ErrDuplicateDelivery when
	// a delivery for the same (event, endpoint) pair already exists.
	Enqueue(ctx context.Context, d *Delivery) error

	// EnqueueBatch creates multiple pending deliveries (fan-out), skipping
	// (event, endpoint) pairs that already exist. Returns the number
	// actually created.
	EnqueueBatch(ctx context.Context, ds []*Delivery) (int, error)

	// Dequeue claims up to limit pending deliveries for execution.
	// Implementations must ensure no double-claim (e.g. SKIP LOCKED).
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)

	// UpdateDelivery persists a state transition and its snapshots.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListByEndpoint returns delivery history for an endpoint.
	ListByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*Delivery, error)

	// ListByEvent returns all deliveries for a specific event.
	ListByEvent(ctx context.Context, evtID id.ID) ([]*Delivery, error)

	// CountPending returns the number of deliveries awaiting attempt.
	CountPending(ctx context.Context) (int64, error)

	// DeleteDeliveriesBefore deletes every delivery created before cutoff,
	// regardless of state, and returns how many were removed.
	DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
