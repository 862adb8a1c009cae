package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hookpost/hookpost/delivery"
)

func TestEngineDeliversPending(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{})

	engine := delivery.NewEngine(f.store, f.executor, delivery.EngineConfig{
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	}, nil)

	ctx := context.Background()
	engine.Start(ctx)
	defer engine.Stop(ctx)

	deadline := time.After(3 * time.Second)
	for {
		stored, err := f.store.GetDelivery(ctx, f.del.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.State.Terminal() {
			if stored.State != delivery.StateCompleted {
				t.Fatalf("state = %s, want completed", stored.State)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("delivery never reached a terminal state (currently %s)", stored.State)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if hits.Load() != 1 {
		t.Errorf("endpoint hit %d times, want exactly 1", hits.Load())
	}
}

func TestEngineStopWaitsForInflight(t *testing.T) {
	release := make(chan struct{})
	var done atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		done.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{
		ReadTimeout: 5 * time.Second,
	})

	engine := delivery.NewEngine(f.store, f.executor, delivery.EngineConfig{
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		BatchSize:    1,
	}, nil)

	ctx := context.Background()
	engine.Start(ctx)

	// Wait until the worker claims the delivery and is blocked in the handler.
	deadline := time.After(3 * time.Second)
	for {
		n, err := f.store.CountPending(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("delivery never claimed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	engine.Stop(ctx)

	if !done.Load() {
		t.Error("Stop returned before the in-flight delivery finished")
	}

	// The attempt overlapped the shutdown but was never aborted: it must
	// land completed, and the tracker must see a success, not a failure.
	stored, err := f.store.GetDelivery(ctx, f.del.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != delivery.StateCompleted {
		t.Errorf("state = %s after shutdown overlap, want completed", stored.State)
	}
	if f.recorder.calls != 1 || !f.recorder.succeeded[0] {
		t.Errorf("recorded outcomes = %+v, want one success", f.recorder.succeeded)
	}
}

func TestEngineStopTimeoutBoundsDrain(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	f := newExecutorFixture(t, srv.URL, openResolver(), delivery.ExecutorConfig{
		ReadTimeout: 10 * time.Second,
	})

	engine := delivery.NewEngine(f.store, f.executor, delivery.EngineConfig{
		Concurrency:     1,
		PollInterval:    10 * time.Millisecond,
		BatchSize:       1,
		ShutdownTimeout: 50 * time.Millisecond,
	}, nil)

	ctx := context.Background()
	engine.Start(ctx)

	deadline := time.After(3 * time.Second)
	for {
		n, err := f.store.CountPending(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("delivery never claimed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	start := time.Now()
	engine.Stop(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %v with a stuck delivery, want the shutdown timeout to bound it", elapsed)
	}
}
