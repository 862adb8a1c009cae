package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

// endpointModel is the JSON representation stored in Redis.
type endpointModel struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	URL            string            `json:"url"`
	Description    string            `json:"description"`
	Secret         string            `json:"secret"`
	EventTypes     []string          `json:"event_types"`
	Headers        map[string]string `json:"headers,omitempty"`
	Enabled        bool              `json:"enabled"`
	DisabledAt     *time.Time        `json:"disabled_at,omitempty"`
	DisabledReason string            `json:"disabled_reason,omitempty"`
	RateLimit      int               `json:"rate_limit"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toEndpointModel(ep *endpoint.Endpoint) *endpointModel {
	return &endpointModel{
		ID:             ep.ID.String(),
		TenantID:       ep.TenantID,
		URL:            ep.URL,
		Description:    ep.Description,
		Secret:         ep.Secret,
		EventTypes:     ep.EventTypes,
		Headers:        ep.Headers,
		Enabled:        ep.Enabled,
		DisabledAt:     ep.DisabledAt,
		DisabledReason: ep.DisabledReason,
		RateLimit:      ep.RateLimit,
		CreatedAt:      ep.CreatedAt,
		UpdatedAt:      ep.UpdatedAt,
	}
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             epID,
		TenantID:       m.TenantID,
		URL:            m.URL,
		Description:    m.Description,
		Secret:         m.Secret,
		EventTypes:     m.EventTypes,
		Headers:        m.Headers,
		Enabled:        m.Enabled,
		DisabledAt:     m.DisabledAt,
		DisabledReason: m.DisabledReason,
		RateLimit:      m.RateLimit,
	}, nil
}

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	key := entityKey(prefixEndpoint, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookpost/redis: create endpoint: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zEndpointTenant+m.TenantID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.Enabled {
		pipe.SAdd(ctx, enabledSetKey(m.TenantID), m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hookpost/redis: create endpoint indexes: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m endpointModel
	if err := s.getEntity(ctx, entityKey(prefixEndpoint, epID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, hookpost.ErrEndpointNotFound
		}
		return nil, fmt.Errorf("hookpost/redis: get endpoint: %w", err)
	}
	return fromEndpointModel(&m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	key := entityKey(prefixEndpoint, ep.ID.String())

	// Verify existence.
	var existing endpointModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isRedisNil(err) {
			return hookpost.ErrEndpointNotFound
		}
		return fmt.Errorf("hookpost/redis: update endpoint get: %w", err)
	}

	m := toEndpointModel(ep)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookpost/redis: update endpoint: %w", err)
	}

	// Update enabled set.
	if m.Enabled {
		s.rdb.SAdd(ctx, enabledSetKey(m.TenantID), m.ID)
	} else {
		s.rdb.SRem(ctx, enabledSetKey(m.TenantID), m.ID)
	}
	return nil
}

// DeleteEndpoint removes an endpoint and cascades to its deliveries and
// delinquency record.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	key := entityKey(prefixEndpoint, epID.String())

	var m endpointModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return hookpost.ErrEndpointNotFound
		}
		return fmt.Errorf("hookpost/redis: delete endpoint get: %w", err)
	}

	// Cascade: remove every delivery owned by the endpoint.
	delIDs, err := s.rdb.ZRange(ctx, zDeliveryEP+m.ID, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("hookpost/redis: delete endpoint deliveries: %w", err)
	}
	for _, delID := range delIDs {
		var dm deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), &dm); err != nil {
			if isRedisNil(err) {
				continue
			}
			return err
		}
		if err := s.removeDelivery(ctx, &dm); err != nil {
			return err
		}
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, zDeliveryEP+m.ID)
	pipe.Del(ctx, entityKey(prefixDelinq, m.ID))
	pipe.ZRem(ctx, zEndpointTenant+m.TenantID, m.ID)
	pipe.SRem(ctx, enabledSetKey(m.TenantID), m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hookpost/redis: delete endpoint indexes: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, tenantID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.ZRange(ctx, zEndpointTenant+tenantID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: list endpoints: %w", err)
	}

	result := make([]*endpoint.Endpoint, 0, len(ids))
	for _, entryID := range ids {
		var m endpointModel
		if err := s.getEntity(ctx, entityKey(prefixEndpoint, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Enabled != nil && m.Enabled != *opts.Enabled {
			continue
		}
		ep, err := fromEndpointModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.SMembers(ctx, enabledSetKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: resolve: %w", err)
	}

	var result []*endpoint.Endpoint
	for _, entryID := range ids {
		var m endpointModel
		if err := s.getEntity(ctx, entityKey(prefixEndpoint, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		for _, pattern := range m.EventTypes {
			if catalog.Match(pattern, eventType) {
				ep, err := fromEndpointModel(&m)
				if err != nil {
					return nil, err
				}
				result = append(result, ep)
				break
			}
		}
	}
	return result, nil
}

// SetEnabled flips the endpoint's active flag, reporting whether it changed.
// Re-enabling clears the endpoint's delinquency record so a stale streak
// cannot immediately re-disable it.
func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool, reason string) (bool, error) {
	key := entityKey(prefixEndpoint, epID.String())

	var m endpointModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return false, hookpost.ErrEndpointNotFound
		}
		return false, fmt.Errorf("hookpost/redis: set enabled get: %w", err)
	}

	if m.Enabled == enabled {
		return false, nil
	}

	ts := now()
	m.Enabled = enabled
	m.UpdatedAt = ts
	if enabled {
		m.DisabledAt = nil
		m.DisabledReason = ""
	} else {
		m.DisabledAt = &ts
		m.DisabledReason = reason
	}

	if err := s.setEntity(ctx, key, &m); err != nil {
		return false, fmt.Errorf("hookpost/redis: set enabled: %w", err)
	}

	pipe := s.rdb.Pipeline()
	if enabled {
		pipe.SAdd(ctx, enabledSetKey(m.TenantID), m.ID)
		pipe.Del(ctx, entityKey(prefixDelinq, m.ID))
	} else {
		pipe.SRem(ctx, enabledSetKey(m.TenantID), m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("hookpost/redis: set enabled indexes: %w", err)
	}
	return true, nil
}
