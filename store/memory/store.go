// Package memory provides an in-memory Store implementation for unit
// testing and examples.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/delinquency"
	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/event"
	"github.com/hookpost/hookpost/id"
	hookstore "github.com/hookpost/hookpost/store"
)

// compile-time interface check.
var _ hookstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	eventTypes      map[string]*catalog.EventType   // keyed by name
	endpoints       map[string]*endpoint.Endpoint   // keyed by ID string
	events          map[string]*event.Event         // keyed by ID string
	eventsByIdemKey map[string]string               // idempotency key → event ID
	deliveries      map[string]*delivery.Delivery   // keyed by ID string
	pairs           map[string]string               // eventID+"\x00"+endpointID → delivery ID
	claimed         map[string]bool                 // simulates SKIP LOCKED
	delinquencies   map[string]*delinquency.Record  // keyed by endpoint ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		eventTypes:      make(map[string]*catalog.EventType),
		endpoints:       make(map[string]*endpoint.Endpoint),
		events:          make(map[string]*event.Event),
		eventsByIdemKey: make(map[string]string),
		deliveries:      make(map[string]*delivery.Delivery),
		pairs:           make(map[string]string),
		claimed:         make(map[string]bool),
		delinquencies:   make(map[string]*delinquency.Record),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return hookpost.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		existing.Definition = et.Definition
		existing.UpdatedAt = time.Now().UTC()
		et.ID = existing.ID
		return nil
	}

	s.eventTypes[et.Definition.Name] = et
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, hookpost.ErrEventTypeNotFound
	}
	return et, nil
}

// ListTypes returns all registered event types, optionally filtered.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.EventType, 0, len(s.eventTypes))
	for _, et := range s.eventTypes {
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		result = append(result, et)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return hookpost.ErrEventTypeNotFound
	}

	now := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &now
	et.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ep
	s.endpoints[ep.ID.String()] = &cp
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, hookpost.ErrEndpointNotFound
	}
	cp := *ep
	return &cp, nil
}

// UpdateEndpoint modifies an existing endpoint.
func (s *Store) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[ep.ID.String()]; !ok {
		return hookpost.ErrEndpointNotFound
	}
	cp := *ep
	cp.UpdatedAt = time.Now().UTC()
	s.endpoints[ep.ID.String()] = &cp
	return nil
}

// DeleteEndpoint removes an endpoint and cascades to its deliveries and
// delinquency record.
func (s *Store) DeleteEndpoint(_ context.Context, epID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := epID.String()
	if _, ok := s.endpoints[key]; !ok {
		return hookpost.ErrEndpointNotFound
	}
	delete(s.endpoints, key)
	delete(s.delinquencies, key)

	for delID, d := range s.deliveries {
		if d.EndpointID.String() == key {
			delete(s.pairs, pairKey(d.EventID, d.EndpointID))
			delete(s.claimed, delID)
			delete(s.deliveries, delID)
		}
	}
	return nil
}

// ListEndpoints returns endpoints for a tenant, optionally filtered.
func (s *Store) ListEndpoints(_ context.Context, tenantID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*endpoint.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		if ep.TenantID != tenantID {
			continue
		}
		if opts.Enabled != nil && ep.Enabled != *opts.Enabled {
			continue
		}
		cp := *ep
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// Resolve finds all enabled endpoints subscribed to an event type for a tenant.
func (s *Store) Resolve(_ context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*endpoint.Endpoint
	for _, ep := range s.endpoints {
		if ep.TenantID != tenantID || !ep.Enabled {
			continue
		}
		for _, pattern := range ep.EventTypes {
			if catalog.Match(pattern, eventType) {
				cp := *ep
				result = append(result, &cp)
				break
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SetEnabled flips an endpoint's active flag, reporting whether it changed.
// Re-enabling clears the endpoint's delinquency record so a stale streak
// cannot immediately re-disable it.
func (s *Store) SetEnabled(_ context.Context, epID id.ID, enabled bool, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return false, hookpost.ErrEndpointNotFound
	}

	if ep.Enabled == enabled {
		return false, nil
	}

	now := time.Now().UTC()
	ep.Enabled = enabled
	ep.UpdatedAt = now
	if enabled {
		ep.DisabledAt = nil
		ep.DisabledReason = ""
		delete(s.delinquencies, epID.String())
	} else {
		ep.DisabledAt = &now
		ep.DisabledReason = reason
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event. Re-creating an event with a known ID is a
// no-op; a duplicate idempotency key returns ErrDuplicateIdempotencyKey.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[evt.ID.String()]; ok {
		return nil
	}

	if evt.IdempotencyKey != "" {
		if _, ok := s.eventsByIdemKey[evt.IdempotencyKey]; ok {
			return hookpost.ErrDuplicateIdempotencyKey
		}
		s.eventsByIdemKey[evt.IdempotencyKey] = evt.ID.String()
	}

	cp := *evt
	s.events[evt.ID.String()] = &cp
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, hookpost.ErrEventNotFound
	}
	cp := *evt
	return &cp, nil
}

// ListEvents returns events, optionally filtered by type or time range.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		if opts.From != nil && evt.CreatedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && evt.CreatedAt.After(*opts.To) {
			continue
		}
		cp := *evt
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// Enqueue creates a pending delivery, enforcing (event, endpoint) uniqueness.
func (s *Store) Enqueue(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(d)
}

// EnqueueBatch creates multiple pending deliveries, skipping duplicates.
func (s *Store) EnqueueBatch(_ context.Context, ds []*delivery.Delivery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, d := range ds {
		if err := s.enqueueLocked(d); err != nil {
			if err == hookpost.ErrDuplicateDelivery {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *Store) enqueueLocked(d *delivery.Delivery) error {
	pk := pairKey(d.EventID, d.EndpointID)
	if _, ok := s.pairs[pk]; ok {
		return hookpost.ErrDuplicateDelivery
	}

	cp := *d
	s.deliveries[d.ID.String()] = &cp
	s.pairs[pk] = d.ID.String()
	return nil
}

// Dequeue claims up to limit pending deliveries, oldest first.
func (s *Store) Dequeue(_ context.Context, limit int) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*delivery.Delivery
	for delID, d := range s.deliveries {
		if d.State == delivery.StatePending && !s.claimed[delID] {
			pending = append(pending, d)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]*delivery.Delivery, 0, len(pending))
	for _, d := range pending {
		s.claimed[d.ID.String()] = true
		cp := *d
		result = append(result, &cp)
	}
	return result, nil
}

// UpdateDelivery persists a state transition and its snapshots.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID.String()]; !ok {
		return hookpost.ErrDeliveryNotFound
	}

	cp := *d
	s.deliveries[d.ID.String()] = &cp
	if d.State.Terminal() {
		delete(s.claimed, d.ID.String())
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, hookpost.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

// ListByEndpoint returns delivery history for an endpoint.
func (s *Store) ListByEndpoint(_ context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Delivery
	for _, d := range s.deliveries {
		if d.EndpointID != epID {
			continue
		}
		if opts.State != nil && d.State != *opts.State {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListByEvent returns all deliveries for a specific event.
func (s *Store) ListByEvent(_ context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Delivery
	for _, d := range s.deliveries {
		if d.EventID != evtID {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, d := range s.deliveries {
		if d.State == delivery.StatePending {
			n++
		}
	}
	return n, nil
}

// DeleteDeliveriesBefore deletes every delivery created before cutoff.
func (s *Store) DeleteDeliveriesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept int64
	for delID, d := range s.deliveries {
		if d.CreatedAt.Before(cutoff) {
			delete(s.pairs, pairKey(d.EventID, d.EndpointID))
			delete(s.claimed, delID)
			delete(s.deliveries, delID)
			swept++
		}
	}
	return swept, nil
}

// ──────────────────────────────────────────────────
// delinquency.Store
// ──────────────────────────────────────────────────

// GetDelinquency returns the record for an endpoint; a streak-free endpoint
// yields a zero record.
func (s *Store) GetDelinquency(_ context.Context, epID id.ID) (*delinquency.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.delinquencies[epID.String()]
	if !ok {
		return &delinquency.Record{EndpointID: epID}, nil
	}
	cp := *rec
	return &cp, nil
}

// ResetDelinquency clears the endpoint's failure streak.
func (s *Store) ResetDelinquency(_ context.Context, epID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.delinquencies, epID.String())
	return nil
}

// BumpDelinquency atomically increments the failure counter, stamping
// FirstFailureAt when this failure starts a new streak.
func (s *Store) BumpDelinquency(_ context.Context, epID id.ID, now time.Time) (*delinquency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.delinquencies[epID.String()]
	if !ok {
		rec = &delinquency.Record{EndpointID: epID}
		s.delinquencies[epID.String()] = rec
	}

	rec.FailureCount++
	if rec.FirstFailureAt == nil {
		at := now
		rec.FirstFailureAt = &at
	}

	cp := *rec
	return &cp, nil
}

// SeedDelinquency overwrites an endpoint's record. Test helper.
func (s *Store) SeedDelinquency(rec *delinquency.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.delinquencies[rec.EndpointID.String()] = &cp
}

func pairKey(evtID, epID id.ID) string {
	return evtID.String() + "\x00" + epID.String()
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
