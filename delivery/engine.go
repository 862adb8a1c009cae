package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EngineStore is the interface the worker pool needs.
type EngineStore interface {
	// Dequeue claims pending deliveries ready for attempt (no double-claim).
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)
}

// EngineConfig holds worker pool configuration.
type EngineConfig struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int

	// ShutdownTimeout bounds how long Stop waits for in-flight deliveries.
	// Zero means wait indefinitely.
	ShutdownTimeout time.Duration
}

// Engine is the delivery worker pool: it polls the store for pending
// deliveries and runs each through the executor. Each claimed delivery is
// owned by exactly one goroutine from claim to terminal state.
//
// The engine is optional — Execute is a public entry point, so an external
// task scheduler can drive deliveries on its own cadence instead.
type Engine struct {
	store    EngineStore
	executor *Executor
	config   EngineConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery worker pool.
func NewEngine(store EngineStore, executor *Executor, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		executor: executor,
		config:   cfg,
		logger:   logger,
	}
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete,
// up to ShutdownTimeout. Attempts already claimed keep running under their
// own request timeouts, so a shutdown never turns a live attempt into a
// false failure.
func (e *Engine) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	var deadline <-chan time.Time
	if e.config.ShutdownTimeout > 0 {
		timer := time.NewTimer(e.config.ShutdownTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-drained:
	case <-deadline:
		e.logger.WarnContext(ctx, "shutdown timeout elapsed with deliveries in flight")
	case <-ctx.Done():
		e.logger.WarnContext(ctx, "shutdown context canceled with deliveries in flight")
	}
}

// pollLoop periodically dequeues pending deliveries and dispatches them to
// workers, bounded by the concurrency semaphore.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					// Detached from the poll loop's cancellation: a claimed
					// delivery finishes under the executor's own timeouts
					// rather than being aborted mid-request on shutdown.
					execCtx := context.WithoutCancel(ctx)
					if execErr := e.executor.Execute(execCtx, del); execErr != nil {
						// Persistence faults surface here; the delivery stays
						// non-terminal for safe external retry.
						e.logger.ErrorContext(ctx, "delivery execution failed",
							"delivery_id", del.ID, "error", execErr)
					}
				}(d)
			}
		}
	}
}
