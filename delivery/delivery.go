// Package delivery implements the webhook delivery state machine, the
// executor that performs one bounded HTTP attempt, and the worker pool that
// drives pending deliveries.
package delivery

import (
	"time"

	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

// State represents the current state of a delivery.
type State string

const (
	// StatePending indicates the delivery record exists but no network
	// attempt has started.
	StatePending State = "pending"

	// StateInProgress indicates an attempt is underway. Persisted before the
	// executor dials out.
	StateInProgress State = "in_progress"

	// StateCompleted indicates an HTTP response was received, regardless of
	// status code. Terminal.
	StateCompleted State = "completed"

	// StateErrored indicates the attempt could not produce an HTTP response:
	// resolution blocked, connection failure, timeout, or TLS failure.
	// Terminal. Retry scheduling, if any, belongs to the external scheduler.
	StateErrored State = "errored"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// RequestSnapshot is the persisted description of the request actually sent.
type RequestSnapshot struct {
	// Method is the HTTP method. Always POST today.
	Method string `json:"method"`

	// URL is the destination URL at dispatch time.
	URL string `json:"url"`

	// Headers are the outbound headers, including signature and timestamp.
	Headers map[string]string `json:"headers,omitempty"`

	// Body is the exact payload bytes transmitted and signed.
	Body []byte `json:"body,omitempty"`
}

// ResponseSnapshot is the persisted description of the response received.
// Populated only when the delivery reached the completed state.
type ResponseSnapshot struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"status_code"`

	// Headers are the response headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Body is the response body, truncated at the configured cap.
	Body []byte `json:"body,omitempty"`

	// Truncated indicates the body exceeded the cap and was cut.
	Truncated bool `json:"truncated,omitempty"`
}

// Delivery represents one attempt to deliver one event to one endpoint.
// Exactly one worker owns a delivery from claim to terminal state.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// EventID references the event being delivered.
	EventID id.ID `json:"event_id"`

	// EndpointID references the target endpoint.
	EndpointID id.ID `json:"endpoint_id"`

	// State is the current delivery state.
	State State `json:"state"`

	// Request is the snapshot of the request sent. Set by the executor.
	Request *RequestSnapshot `json:"request,omitempty"`

	// Response is the snapshot of the response received. Set only on
	// completed deliveries.
	Response *ResponseSnapshot `json:"response,omitempty"`

	// Error is the fault description for errored deliveries.
	Error string `json:"error,omitempty"`

	// LatencyMs is the attempt latency in milliseconds.
	LatencyMs int `json:"latency_ms,omitempty"`

	// CompletedAt is when the delivery entered a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Succeeded reports whether the delivery completed with a 2xx response.
// A completed delivery with a non-2xx status is NOT the same as errored:
// completed means the endpoint was reached and responded. Delinquency
// accounting is driven by this predicate, not by the state alone.
func (d *Delivery) Succeeded() bool {
	return d.State == StateCompleted &&
		d.Response != nil &&
		d.Response.StatusCode >= 200 && d.Response.StatusCode < 300
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
