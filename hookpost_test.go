package hookpost_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/event"
	"github.com/hookpost/hookpost/store/memory"
)

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func ctx() context.Context { return context.Background() }

func setup(t *testing.T, opts ...hookpost.Option) (*hookpost.Hookpost, *memory.Store) {
	t.Helper()
	s := memory.New()
	hp, err := hookpost.New(append([]hookpost.Option{hookpost.WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return hp, s
}

func registerType(t *testing.T, hp *hookpost.Hookpost, name string) {
	t.Helper()
	if _, err := hp.RegisterEventType(ctx(), catalog.Definition{Name: name}); err != nil {
		t.Fatal(err)
	}
}

func createEndpoint(t *testing.T, hp *hookpost.Hookpost, tenantID, url string, patterns []string) *endpoint.Endpoint {
	t.Helper()
	ep, err := hp.Endpoints().Create(ctx(), endpoint.Input{
		TenantID:   tenantID,
		URL:        url,
		EventTypes: patterns,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ep
}

func TestNewRequiresStore(t *testing.T) {
	_, err := hookpost.New()
	if !errors.Is(err, hookpost.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestDispatchFansOut(t *testing.T) {
	hp, s := setup(t)

	registerType(t, hp, "invoice.created")
	createEndpoint(t, hp, "t1", "https://example.com/a", []string{"invoice.*"})
	createEndpoint(t, hp, "t1", "https://example.com/b", []string{"*"})
	createEndpoint(t, hp, "t1", "https://example.com/c", []string{"user.*"}) // no match
	createEndpoint(t, hp, "t2", "https://example.com/d", []string{"*"})      // other tenant

	evt := &event.Event{
		Type:     "invoice.created",
		TenantID: "t1",
		Data:     map[string]any{"amount": 100},
	}

	if err := hp.Dispatch(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	if evt.ID.IsNil() {
		t.Fatal("expected event ID to be assigned")
	}

	deliveries, err := s.ListByEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(deliveries))
	}
	for _, d := range deliveries {
		if d.State != delivery.StatePending {
			t.Fatalf("expected pending, got %s", d.State)
		}
	}
}

func TestDispatchTwiceCreatesOneDeliveryPerPair(t *testing.T) {
	hp, s := setup(t)

	registerType(t, hp, "invoice.created")
	createEndpoint(t, hp, "t1", "https://example.com/a", []string{"*"})

	evt := &event.Event{
		Type:     "invoice.created",
		TenantID: "t1",
		Data:     map[string]any{"amount": 100},
	}

	if err := hp.Dispatch(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	// Re-dispatch of the persisted event: at-least-once triggering must not
	// produce a second delivery for the same pair.
	if err := hp.Dispatch(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	deliveries, err := s.ListByEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery after re-dispatch, got %d", len(deliveries))
	}
}

func TestDispatchIdempotencyKey(t *testing.T) {
	hp, s := setup(t)

	registerType(t, hp, "invoice.created")
	createEndpoint(t, hp, "t1", "https://example.com/a", []string{"*"})

	first := &event.Event{
		Type:           "invoice.created",
		TenantID:       "t1",
		Data:           map[string]any{"n": 1},
		IdempotencyKey: "submit-42",
	}
	if err := hp.Dispatch(ctx(), first); err != nil {
		t.Fatal(err)
	}

	// A different event carrying the same key is dropped silently.
	dup := &event.Event{
		Type:           "invoice.created",
		TenantID:       "t1",
		Data:           map[string]any{"n": 2},
		IdempotencyKey: "submit-42",
	}
	if err := hp.Dispatch(ctx(), dup); err != nil {
		t.Fatal(err)
	}

	pending, err := s.CountPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 pending delivery, got %d", pending)
	}
}

func TestDispatchUnknownEventType(t *testing.T) {
	hp, _ := setup(t)

	err := hp.Dispatch(ctx(), &event.Event{
		Type:     "does.not.exist",
		TenantID: "t1",
	})
	if !errors.Is(err, hookpost.ErrEventTypeNotFound) {
		t.Fatalf("expected ErrEventTypeNotFound, got %v", err)
	}
}

func TestDispatchDeprecatedEventType(t *testing.T) {
	hp, _ := setup(t)

	registerType(t, hp, "old.event")
	if err := hp.Catalog().DeleteType(ctx(), "old.event"); err != nil {
		t.Fatal(err)
	}

	err := hp.Dispatch(ctx(), &event.Event{
		Type:     "old.event",
		TenantID: "t1",
	})
	if !errors.Is(err, hookpost.ErrEventTypeDeprecated) {
		t.Fatalf("expected ErrEventTypeDeprecated, got %v", err)
	}
}

func TestDispatchSchemaValidation(t *testing.T) {
	hp, _ := setup(t)

	if _, err := hp.RegisterEventType(ctx(), catalog.Definition{
		Name: "validated.event",
		Schema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount": map[string]any{"type": "number"},
			},
			"required": []any{"amount"},
		}),
	}); err != nil {
		t.Fatal(err)
	}

	err := hp.Dispatch(ctx(), &event.Event{
		Type:     "validated.event",
		TenantID: "t1",
		Data:     map[string]any{"wrong": true},
	})
	if !errors.Is(err, hookpost.ErrPayloadValidationFailed) {
		t.Fatalf("expected ErrPayloadValidationFailed, got %v", err)
	}

	// A conforming payload passes.
	if err := hp.Dispatch(ctx(), &event.Event{
		Type:     "validated.event",
		TenantID: "t1",
		Data:     map[string]any{"amount": 12.5},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchNoMatchingEndpoints(t *testing.T) {
	hp, s := setup(t)

	registerType(t, hp, "invoice.created")

	if err := hp.Dispatch(ctx(), &event.Event{
		Type:     "invoice.created",
		TenantID: "t1",
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := s.CountPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Fatalf("expected 0 deliveries without subscribers, got %d", pending)
	}
}

func TestDispatchExcludesDisabledEndpoints(t *testing.T) {
	hp, s := setup(t)

	registerType(t, hp, "invoice.created")
	ep := createEndpoint(t, hp, "t1", "https://example.com/a", []string{"*"})
	if _, err := hp.Endpoints().SetEnabled(ctx(), ep.ID, false); err != nil {
		t.Fatal(err)
	}

	if err := hp.Dispatch(ctx(), &event.Event{
		Type:     "invoice.created",
		TenantID: "t1",
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := s.CountPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Fatalf("disabled endpoint received a delivery")
	}
}

func TestEndToEndDelivery(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Loopback unblocked so the httptest server is reachable.
	hp, s := setup(t,
		hookpost.WithBlockedRanges(nil),
		hookpost.WithPollInterval(10*time.Millisecond),
	)

	registerType(t, hp, "invoice.created")
	createEndpoint(t, hp, "t1", srv.URL, []string{"invoice.*"})

	evt := &event.Event{
		Type:     "invoice.created",
		TenantID: "t1",
		Data:     map[string]any{"amount": 100},
	}
	if err := hp.Dispatch(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	hp.Start(ctx())
	defer hp.Stop(ctx())

	deadline := time.After(3 * time.Second)
	for {
		deliveries, err := s.ListByEvent(ctx(), evt.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(deliveries) == 1 && deliveries[0].State.Terminal() {
			if deliveries[0].State != delivery.StateCompleted {
				t.Fatalf("state = %s, want completed", deliveries[0].State)
			}
			if !deliveries[0].Succeeded() {
				t.Fatal("delivery did not succeed")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("delivery never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("endpoint hit %d times, want 1", n)
	}
}

func TestSweepThroughFacade(t *testing.T) {
	hp, s := setup(t, hookpost.WithRetentionHorizon(7*24*time.Hour))

	registerType(t, hp, "invoice.created")
	createEndpoint(t, hp, "t1", "https://example.com/a", []string{"*"})

	evt := &event.Event{Type: "invoice.created", TenantID: "t1"}
	if err := hp.Dispatch(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	// Not yet past the horizon: nothing swept.
	swept, err := hp.Sweep(ctx(), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0", swept)
	}

	// Eight days later the record is past the horizon.
	swept, err = hp.Sweep(ctx(), time.Now().UTC().Add(8*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	pending, err := s.CountPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Fatal("swept delivery still pending")
	}
}
