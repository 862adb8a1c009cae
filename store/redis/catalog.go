package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

// eventTypeModel is the JSON representation stored in Redis, keyed by name.
type eventTypeModel struct {
	ID           string             `json:"id"`
	Definition   catalog.Definition `json:"definition"`
	IsDeprecated bool               `json:"deprecated"`
	DeprecatedAt *time.Time         `json:"deprecated_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:           et.ID.String(),
		Definition:   et.Definition,
		IsDeprecated: et.IsDeprecated,
		DeprecatedAt: et.DeprecatedAt,
		CreatedAt:    et.CreatedAt,
		UpdatedAt:    et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           etID,
		Definition:   m.Definition,
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
	}, nil
}

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	key := entityKey(prefixEventType, et.Definition.Name)

	var existing eventTypeModel
	err := s.getEntity(ctx, key, &existing)
	switch {
	case err == nil:
		// Upsert keeps the original identity and creation time.
		existingID, parseErr := id.ParseEventTypeID(existing.ID)
		if parseErr != nil {
			return fmt.Errorf("hookpost/redis: register type: %w", parseErr)
		}
		et.ID = existingID
		et.CreatedAt = existing.CreatedAt
	case isRedisNil(err):
		// New registration.
	default:
		return fmt.Errorf("hookpost/redis: register type get: %w", err)
	}

	m := toEventTypeModel(et)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookpost/redis: register type: %w", err)
	}

	// Score 0 for all members keeps the set in lexicographic name order.
	if err := s.rdb.ZAdd(ctx, zEventTypeAll, goredis.Z{
		Score:  0,
		Member: et.Definition.Name,
	}).Err(); err != nil {
		return fmt.Errorf("hookpost/redis: register type index: %w", err)
	}
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	var m eventTypeModel
	if err := s.getEntity(ctx, entityKey(prefixEventType, name), &m); err != nil {
		if isRedisNil(err) {
			return nil, hookpost.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("hookpost/redis: get type: %w", err)
	}
	return fromEventTypeModel(&m)
}

// ListTypes returns registered event types ordered by name.
func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	names, err := s.rdb.ZRangeByLex(ctx, zEventTypeAll, &goredis.ZRangeBy{
		Min: "-", Max: "+",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: list types: %w", err)
	}

	result := make([]*catalog.EventType, 0, len(names))
	for _, name := range names {
		var m eventTypeModel
		if err := s.getEntity(ctx, entityKey(prefixEventType, name), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !opts.IncludeDeprecated && m.IsDeprecated {
			continue
		}
		et, err := fromEventTypeModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, et)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	key := entityKey(prefixEventType, name)

	var m eventTypeModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return hookpost.ErrEventTypeNotFound
		}
		return fmt.Errorf("hookpost/redis: delete type get: %w", err)
	}

	ts := now()
	m.IsDeprecated = true
	m.DeprecatedAt = &ts
	m.UpdatedAt = ts

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("hookpost/redis: delete type: %w", err)
	}
	return nil
}
