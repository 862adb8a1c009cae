package endpoint

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
	"github.com/hookpost/hookpost/signature"
)

// Service provides endpoint management operations. It is also the
// administrative surface for re-enabling endpoints the delinquency tracker
// has deactivated.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new endpoint service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a new webhook endpoint.
func (svc *Service) Create(ctx context.Context, in Input) (*Endpoint, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	if in.TenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Message: "required"}
	}

	if len(in.EventTypes) == 0 {
		return nil, &ValidationError{Field: "event_types", Message: "at least one event type pattern required"}
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}

	ep := &Endpoint{
		Entity:      entity.New(),
		ID:          id.NewEndpointID(),
		TenantID:    in.TenantID,
		URL:         in.URL,
		Description: in.Description,
		Secret:      secret,
		EventTypes:  in.EventTypes,
		Headers:     in.Headers,
		Enabled:     true,
		RateLimit:   in.RateLimit,
	}

	if err := svc.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// Get returns an endpoint by ID.
func (svc *Service) Get(ctx context.Context, epID id.ID) (*Endpoint, error) {
	return svc.store.GetEndpoint(ctx, epID)
}

// Update modifies an existing endpoint.
func (svc *Service) Update(ctx context.Context, epID id.ID, in Input) (*Endpoint, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" {
		if err := validateURL(in.URL); err != nil {
			return nil, err
		}
		ep.URL = in.URL
	}
	if in.Description != "" {
		ep.Description = in.Description
	}
	if len(in.EventTypes) > 0 {
		ep.EventTypes = in.EventTypes
	}
	if in.Headers != nil {
		ep.Headers = in.Headers
	}
	if in.RateLimit >= 0 {
		ep.RateLimit = in.RateLimit
	}

	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// Delete removes an endpoint along with its deliveries and delinquency record.
func (svc *Service) Delete(ctx context.Context, epID id.ID) error {
	return svc.store.DeleteEndpoint(ctx, epID)
}

// List returns endpoints for a tenant.
func (svc *Service) List(ctx context.Context, tenantID string, opts ListOpts) ([]*Endpoint, error) {
	return svc.store.ListEndpoints(ctx, tenantID, opts)
}

// SetEnabled enables or disables an endpoint. Returns whether the flag
// changed.
func (svc *Service) SetEnabled(ctx context.Context, epID id.ID, enabled bool) (bool, error) {
	reason := ""
	if !enabled {
		reason = "administrative"
	}
	changed, err := svc.store.SetEnabled(ctx, epID, enabled, reason)
	if err != nil {
		return false, err
	}
	if changed {
		svc.logger.InfoContext(ctx, "endpoint enabled state changed",
			"endpoint_id", epID, "enabled", enabled)
	}
	return changed, nil
}

// RotateSecret generates a new signing secret for an endpoint.
func (svc *Service) RotateSecret(ctx context.Context, epID id.ID) (string, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return "", err
	}

	newSecret := signature.GenerateSecret()

	ep.Secret = newSecret
	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return "", err
	}

	return newSecret, nil
}

// validateURL accepts only absolute http/https URLs with a host.
func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Message: "host required"}
	}
	return nil
}
