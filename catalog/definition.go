// Package catalog manages the registry of webhook event types.
package catalog

import "encoding/json"

// Definition is the canonical description of a webhook event type.
// Definitions are persisted and can be registered at boot or at runtime.
type Definition struct {
	// Name is the dot-separated event type name.
	// Convention: "<resource>.<action>" — e.g. "invoice.created", "deployment.completed".
	Name string `json:"name"`

	// Description is a human-readable explanation of when this event fires.
	Description string `json:"description"`

	// Schema is an optional JSON Schema describing the payload shape.
	// When set, Dispatch validates the event data against this schema.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Version is the API version of this event type.
	// Convention: date-based, e.g. "2025-01-01".
	Version string `json:"version"`
}
