package delinquency

import (
	"context"
	"time"

	"github.com/hookpost/hookpost/id"
)

// Store defines the persistence contract for delinquency accounting.
//
// BumpDelinquency and ResetDelinquency must be atomic per endpoint:
// concurrent in-flight deliveries to one endpoint apply their outcomes in a
// mutually exclusive fashion (per-endpoint lock, Lua script, or a single
// UPDATE), never as a lost-update read-then-write.
type Store interface {
	// GetDelinquency returns the record for an endpoint. A streak-free
	// endpoint yields a zero record, not an error.
	GetDelinquency(ctx context.Context, epID id.ID) (*Record, error)

	// ResetDelinquency clears the endpoint's failure streak.
	ResetDelinquency(ctx context.Context, epID id.ID) error

	// BumpDelinquency increments the failure counter, stamping
	// FirstFailureAt with now when this failure starts a new streak, and
	// returns the updated record.
	BumpDelinquency(ctx context.Context, epID id.ID, now time.Time) (*Record, error)

	// SetEnabled flips the endpoint's active flag, recording a reason when
	// disabling. Reports whether the flag actually changed.
	SetEnabled(ctx context.Context, epID id.ID, enabled bool, reason string) (bool, error)
}
