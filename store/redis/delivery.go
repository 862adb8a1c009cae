package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID          string                     `json:"id"`
	EventID     string                     `json:"event_id"`
	EndpointID  string                     `json:"endpoint_id"`
	State       string                     `json:"state"`
	Request     *delivery.RequestSnapshot  `json:"request,omitempty"`
	Response    *delivery.ResponseSnapshot `json:"response,omitempty"`
	Error       string                     `json:"error,omitempty"`
	LatencyMs   int                        `json:"latency_ms,omitempty"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:          d.ID.String(),
		EventID:     d.EventID.String(),
		EndpointID:  d.EndpointID.String(),
		State:       string(d.State),
		Request:     d.Request,
		Response:    d.Response,
		Error:       d.Error,
		LatencyMs:   d.LatencyMs,
		CompletedAt: d.CompletedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          delID,
		EventID:     evtID,
		EndpointID:  epID,
		State:       delivery.State(m.State),
		Request:     m.Request,
		Response:    m.Response,
		Error:       m.Error,
		LatencyMs:   m.LatencyMs,
		CompletedAt: m.CompletedAt,
	}, nil
}

// dequeueScript atomically claims pending deliveries from the sorted set.
// Removal from the set IS the claim: a delivery ID can only ever be handed
// to one worker.
// KEYS[1] = hookpost:z:del:pending
// ARGV[1] = limit
var dequeueScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '+inf', 'LIMIT', 0, tonumber(ARGV[1]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
end
return ids
`)

// Enqueue creates a pending delivery, enforcing (event, endpoint) uniqueness
// through a SETNX unique index.
func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)

	set, err := s.rdb.SetNX(ctx, pairKey(m.EventID, m.EndpointID), m.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("hookpost/redis: enqueue pair index: %w", err)
	}
	if !set {
		return hookpost.ErrDuplicateDelivery
	}

	key := entityKey(prefixDelivery, m.ID)
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookpost/redis: enqueue delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDeliveryPend, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryEP+m.EndpointID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryEvt+m.EventID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hookpost/redis: enqueue delivery indexes: %w", err)
	}
	return nil
}

// EnqueueBatch creates multiple pending deliveries, skipping (event, endpoint)
// pairs that already exist. Returns the number actually created.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) (int, error) {
	created := 0
	for _, d := range ds {
		if err := s.Enqueue(ctx, d); err != nil {
			if err == hookpost.ErrDuplicateDelivery {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

// Dequeue claims up to limit pending deliveries, oldest first.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	result, err := dequeueScript.Run(ctx, s.rdb, []string{zDeliveryPend}, limit).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hookpost/redis: dequeue script: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(result))
	for _, entryID := range result {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("hookpost/redis: dequeue get: %w", err)
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

// UpdateDelivery persists a state transition and its snapshots.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	key := entityKey(prefixDelivery, d.ID.String())

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hookpost/redis: update delivery exists: %w", err)
	}
	if exists == 0 {
		return hookpost.ErrDeliveryNotFound
	}

	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookpost/redis: update delivery: %w", err)
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, hookpost.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("hookpost/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

// ListByEndpoint returns delivery history for an endpoint, newest first.
func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEP+epID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: list by endpoint: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && delivery.State(m.State) != *opts.State {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListByEvent returns all deliveries for a specific event.
func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEvt+evtID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: list by event: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return result, nil
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDeliveryPend).Result()
	if err != nil {
		return 0, fmt.Errorf("hookpost/redis: count pending: %w", err)
	}
	return count, nil
}

// DeleteDeliveriesBefore deletes every delivery created before cutoff.
func (s *Store) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	hi := fmt.Sprintf("(%f", scoreFromTime(cutoff)) // exclusive upper bound
	ids, err := s.rdb.ZRangeByScore(ctx, zDeliveryAll, &goredis.ZRangeBy{
		Min: "-inf", Max: hi,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("hookpost/redis: sweep range: %w", err)
	}

	var swept int64
	for _, entryID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isRedisNil(err) {
				s.rdb.ZRem(ctx, zDeliveryAll, entryID)
				continue
			}
			return swept, fmt.Errorf("hookpost/redis: sweep get: %w", err)
		}
		if err := s.removeDelivery(ctx, &m); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

// removeDelivery deletes a delivery's entity key and all of its indexes.
func (s *Store) removeDelivery(ctx context.Context, m *deliveryModel) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, entityKey(prefixDelivery, m.ID))
	pipe.Del(ctx, pairKey(m.EventID, m.EndpointID))
	pipe.ZRem(ctx, zDeliveryPend, m.ID)
	pipe.ZRem(ctx, zDeliveryEP+m.EndpointID, m.ID)
	pipe.ZRem(ctx, zDeliveryEvt+m.EventID, m.ID)
	pipe.ZRem(ctx, zDeliveryAll, m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hookpost/redis: remove delivery: %w", err)
	}
	return nil
}
