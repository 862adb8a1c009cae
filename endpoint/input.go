package endpoint

// Input carries the caller-supplied fields for creating or updating an
// endpoint. Zero values mean "leave unchanged" on update.
type Input struct {
	// TenantID identifies the owning tenant. Required on create.
	TenantID string

	// URL is the webhook delivery URL. Required on create.
	URL string

	// Description is a human-readable description.
	Description string

	// Secret is the HMAC signing secret. Generated when empty on create.
	Secret string

	// EventTypes are glob patterns for event type subscriptions.
	// At least one is required on create.
	EventTypes []string

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "endpoint validation: " + e.Field + ": " + e.Message
}
