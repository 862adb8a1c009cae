// Package delinquency tracks consecutive delivery failures per endpoint and
// deactivates endpoints that stay delinquent past a rolling window.
package delinquency

import (
	"time"

	"github.com/hookpost/hookpost/id"
)

// Record is the failure-streak accounting for one endpoint.
//
// Invariant: FirstFailureAt is present if and only if FailureCount > 0.
// The record is mutated exactly once per terminal delivery outcome, and
// never concurrently for the same endpoint: every store implements the
// update as an atomic read-modify-write.
type Record struct {
	// EndpointID is the endpoint this record belongs to.
	EndpointID id.ID `json:"endpoint_id"`

	// FailureCount is the number of consecutive failed outcomes. Reset to
	// zero by any successful delivery.
	FailureCount int `json:"failure_count"`

	// FirstFailureAt is when the current failure streak began.
	FirstFailureAt *time.Time `json:"first_failure_at,omitempty"`
}
