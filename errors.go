package hookpost

import (
	"errors"

	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/resolver"
)

// Sentinel errors returned by hookpost operations.
var (
	// ErrNoStore is returned when an engine is created without a store.
	ErrNoStore = errors.New("hookpost: store is required")

	// ErrEndpointNotFound is returned when an endpoint cannot be found.
	ErrEndpointNotFound = errors.New("hookpost: endpoint not found")

	// ErrEndpointDisabled is returned when attempting to deliver to a disabled endpoint.
	ErrEndpointDisabled = errors.New("hookpost: endpoint is disabled")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("hookpost: event not found")

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = errors.New("hookpost: event type not found")

	// ErrEventTypeDeprecated is returned when dispatching an event with a deprecated type.
	ErrEventTypeDeprecated = errors.New("hookpost: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("hookpost: payload validation failed")

	// ErrDuplicateIdempotencyKey is returned when an event with the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("hookpost: duplicate idempotency key")

	// ErrDuplicateDelivery is returned by stores when a delivery for the same
	// (event, endpoint) pair already exists. Dispatch treats it as a no-op.
	ErrDuplicateDelivery = errors.New("hookpost: duplicate delivery")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("hookpost: delivery not found")

	// ErrDeliveryNotPending is returned when executing a delivery that has
	// already left the pending state.
	ErrDeliveryNotPending = delivery.ErrNotPending

	// ErrNoPublicAddress is returned when a destination resolves only to
	// private, loopback, link-local, or otherwise blocked addresses.
	// Deliveries failing this way are never retried.
	ErrNoPublicAddress = resolver.ErrNoPublicAddress

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("hookpost: store is closed")
)
