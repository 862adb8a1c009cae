package delivery_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/event"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
	"github.com/hookpost/hookpost/resolver"
	"github.com/hookpost/hookpost/signature"
	"github.com/hookpost/hookpost/store/memory"
)

// recorderSpy captures RecordOutcome invocations.
type recorderSpy struct {
	calls     int
	succeeded []bool
}

func (r *recorderSpy) RecordOutcome(_ context.Context, _ *endpoint.Endpoint, succeeded bool) error {
	r.calls++
	r.succeeded = append(r.succeeded, succeeded)
	return nil
}

// openResolver admits every address, including loopback, so tests can point
// deliveries at httptest servers.
func openResolver() *resolver.Resolver {
	return resolver.New(resolver.Config{})
}

type executorFixture struct {
	store    *memory.Store
	executor *delivery.Executor
	recorder *recorderSpy
	ep       *endpoint.Endpoint
	evt      *event.Event
	del      *delivery.Delivery
}

func newExecutorFixture(t *testing.T, url string, res *resolver.Resolver, cfg delivery.ExecutorConfig) *executorFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	ep := &endpoint.Endpoint{
		Entity:     entity.New(),
		ID:         id.NewEndpointID(),
		TenantID:   "tenant-1",
		URL:        url,
		Secret:     "whsec_test_secret_1234567890abcdef1234567890abcdef",
		EventTypes: []string{"test.event"},
		Enabled:    true,
	}
	if err := store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatal(err)
	}

	evt := &event.Event{
		Entity:   entity.New(),
		ID:       id.NewEventID(),
		Type:     "test.event",
		TenantID: "tenant-1",
		Data:     map[string]any{"hello": "world"},
	}
	if err := store.CreateEvent(ctx, evt); err != nil {
		t.Fatal(err)
	}

	del := &delivery.Delivery{
		Entity:     entity.New(),
		ID:         id.NewDeliveryID(),
		EventID:    evt.ID,
		EndpointID: ep.ID,
		State:      delivery.StatePending,
	}
	if err := store.Enqueue(ctx, del); err != nil {
		t.Fatal(err)
	}

	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.MaxResponseBytes == 0 {
		cfg.MaxResponseBytes = 1 << 20
	}

	recorder := &recorderSpy{}
	exec := delivery.NewExecutor(store, res, recorder, nil, cfg, nil)

	return &executorFixture{
		store:    store,
		executor: exec,
		recorder: recorder,
		ep:       ep,
		evt:      evt,
		del:      del,
	}
}

func TestExecuteSuccess(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{})
	ctx := context.Background()

	if err := f.executor.Execute(ctx, f.del); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	stored, err := f.store.GetDelivery(ctx, f.del.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != delivery.StateCompleted {
		t.Fatalf("state = %s, want completed", stored.State)
	}
	if !stored.Succeeded() {
		t.Error("Succeeded() = false for a 200 response")
	}
	if stored.Response == nil || stored.Response.StatusCode != 200 {
		t.Fatal("response snapshot missing or wrong status")
	}
	if string(stored.Response.Body) != `{"ok":true}` {
		t.Errorf("response body = %q", stored.Response.Body)
	}
	if stored.Request == nil || stored.Request.Method != http.MethodPost {
		t.Fatal("request snapshot missing or wrong method")
	}
	if stored.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if stored.LatencyMs < 0 {
		t.Error("negative latency")
	}

	// Standard delivery headers.
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Error("missing Content-Type")
	}
	if gotHeaders.Get("User-Agent") != "Hookpost/1.0" {
		t.Errorf("User-Agent = %q", gotHeaders.Get("User-Agent"))
	}
	if gotHeaders.Get("X-Webhook-Event-ID") != f.evt.ID.String() {
		t.Error("missing X-Webhook-Event-ID")
	}
	if gotHeaders.Get("X-Webhook-Event-Type") != "test.event" {
		t.Error("missing X-Webhook-Event-Type")
	}
	if gotHeaders.Get("X-Webhook-Delivery-ID") != f.del.ID.String() {
		t.Error("missing X-Webhook-Delivery-ID")
	}

	// The signature verifies against the exact received bytes.
	sig := gotHeaders.Get("X-Webhook-Signature")
	ts := gotHeaders.Get("X-Webhook-Timestamp")
	if sig == "" || ts == "" {
		t.Fatal("missing signature headers")
	}
	if !signature.Verify(gotBody, f.ep.Secret, ts, sig) {
		t.Error("signature does not verify against received body")
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", ts, err)
	}

	// Exactly one outcome recorded, as a success.
	if f.recorder.calls != 1 || !f.recorder.succeeded[0] {
		t.Errorf("recorder calls = %d, succeeded = %v", f.recorder.calls, f.recorder.succeeded)
	}
}

func TestExecuteRemoteErrorIsCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{})
	ctx := context.Background()

	if err := f.executor.Execute(ctx, f.del); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	stored, err := f.store.GetDelivery(ctx, f.del.ID)
	if err != nil {
		t.Fatal(err)
	}
	// A 500 is still a completed delivery: the endpoint was reached.
	if stored.State != delivery.StateCompleted {
		t.Fatalf("state = %s, want completed", stored.State)
	}
	if stored.Succeeded() {
		t.Error("Succeeded() = true for a 500 response")
	}
	if f.recorder.calls != 1 || f.recorder.succeeded[0] {
		t.Errorf("recorder calls = %d, succeeded = %v", f.recorder.calls, f.recorder.succeeded)
	}
}

func TestExecuteConnectionFailureIsErrored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	f := newExecutorFixture(t, url, openResolver(), delivery.ExecutorConfig{})
	ctx := context.Background()

	if err := f.executor.Execute(ctx, f.del); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	stored, err := f.store.GetDelivery(ctx, f.del.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != delivery.StateErrored {
		t.Fatalf("state = %s, want errored", stored.State)
	}
	if stored.Error == "" {
		t.Error("errored delivery has no error description")
	}
	if stored.Response != nil {
		t.Error("errored delivery must not carry a response snapshot")
	}
	if f.recorder.calls != 1 || f.recorder.succeeded[0] {
		t.Errorf("recorder calls = %d, succeeded = %v", f.recorder.calls, f.recorder.succeeded)
	}
}

func TestExecuteTruncatesOversizedResponse(t *testing.T) {
	payload := strings.Repeat("x", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{
		MaxResponseBytes: 16,
	})
	ctx := context.Background()

	if err := f.executor.Execute(ctx, f.del); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	stored, err := f.store.GetDelivery(ctx, f.del.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Truncation is not a failure: the delivery completed.
	if stored.State != delivery.StateCompleted {
		t.Fatalf("state = %s, want completed", stored.State)
	}
	if !stored.Response.Truncated {
		t.Error("Truncated flag not set")
	}
	if len(stored.Response.Body) != 16 {
		t.Errorf("stored body length = %d, want 16", len(stored.Response.Body))
	}
}

func TestExecuteBlockedDestinationIsErrored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("blocked destination received a request")
	}))
	defer srv.Close()

	blocking := resolver.New(resolver.Config{
		Blocked: hookpost.DefaultBlockedRanges(),
	})
	f := newExecutorFixture(t, srv.URL, blocking, delivery.ExecutorConfig{})
	ctx := context.Background()

	if err := f.executor.Execute(ctx, f.del); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	stored, err := f.store.GetDelivery(ctx, f.del.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != delivery.StateErrored {
		t.Fatalf("state = %s, want errored", stored.State)
	}
	if !strings.Contains(stored.Error, "no public address") {
		t.Errorf("error = %q, want resolver rejection", stored.Error)
	}
}

func TestExecuteRejectsNonPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{})
	ctx := context.Background()

	if err := f.executor.Execute(ctx, f.del); err != nil {
		t.Fatal(err)
	}

	// Terminal deliveries are immutable.
	stored, err := f.store.GetDelivery(ctx, f.del.ID)
	if err != nil {
		t.Fatal(err)
	}
	err = f.executor.Execute(ctx, stored)
	if !errors.Is(err, delivery.ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}
	if f.recorder.calls != 1 {
		t.Errorf("recorder called %d times, want 1", f.recorder.calls)
	}
}

func TestExecuteSendsCustomHeaders(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{})
	ctx := context.Background()

	f.ep.Headers = map[string]string{"X-Custom": "custom-value"}
	if err := f.store.UpdateEndpoint(ctx, f.ep); err != nil {
		t.Fatal(err)
	}

	if err := f.executor.Execute(ctx, f.del); err != nil {
		t.Fatal(err)
	}
	if gotHeaders.Get("X-Custom") != "custom-value" {
		t.Errorf("custom header = %q, want custom-value", gotHeaders.Get("X-Custom"))
	}
}
