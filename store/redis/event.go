package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/event"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

// eventModel is the JSON representation stored in Redis.
type eventModel struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	TenantID       string    `json:"tenant_id"`
	Data           any       `json:"data"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:             evt.ID.String(),
		Type:           evt.Type,
		TenantID:       evt.TenantID,
		Data:           evt.Data,
		IdempotencyKey: evt.IdempotencyKey,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		Type:           m.Type,
		TenantID:       m.TenantID,
		Data:           m.Data,
		IdempotencyKey: m.IdempotencyKey,
	}, nil
}

// CreateEvent persists an event. Re-creating an event with a known ID is a
// no-op; a duplicate idempotency key returns ErrDuplicateIdempotencyKey.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	key := entityKey(prefixEvent, evt.ID.String())

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hookpost/redis: create event exists: %w", err)
	}
	if exists > 0 {
		return nil
	}

	if evt.IdempotencyKey != "" {
		set, err := s.rdb.SetNX(ctx, uniqueEventIdem+evt.IdempotencyKey, evt.ID.String(), 0).Result()
		if err != nil {
			return fmt.Errorf("hookpost/redis: create event idem: %w", err)
		}
		if !set {
			return hookpost.ErrDuplicateIdempotencyKey
		}
	}

	m := toEventModel(evt)
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookpost/redis: create event: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zEventAll, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return fmt.Errorf("hookpost/redis: create event index: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, hookpost.ErrEventNotFound
		}
		return nil, fmt.Errorf("hookpost/redis: get event: %w", err)
	}
	return fromEventModel(&m)
}

// ListEvents returns events, optionally filtered by type or time range.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	lo, hi := "-inf", "+inf"
	if opts.From != nil {
		lo = fmt.Sprintf("%f", scoreFromTime(*opts.From))
	}
	if opts.To != nil {
		hi = fmt.Sprintf("%f", scoreFromTime(*opts.To))
	}

	ids, err := s.rdb.ZRangeByScore(ctx, zEventAll, &goredis.ZRangeBy{
		Min: lo, Max: hi,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(ids))
	for _, entryID := range ids {
		var m eventModel
		if err := s.getEntity(ctx, entityKey(prefixEvent, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Type != "" && m.Type != opts.Type {
			continue
		}
		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
