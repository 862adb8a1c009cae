package hookpost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/delinquency"
	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/event"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
	"github.com/hookpost/hookpost/observability"
	"github.com/hookpost/hookpost/ratelimit"
	"github.com/hookpost/hookpost/resolver"
	"github.com/hookpost/hookpost/retention"
	"github.com/hookpost/hookpost/store"
)

// Hookpost is the root outbound webhook delivery engine.
type Hookpost struct {
	config      Config
	store       store.Store
	catalog     *catalog.Catalog
	validator   *catalog.Validator
	endpointSvc *endpoint.Service
	resolver    *resolver.Resolver
	limiter     *ratelimit.Limiter
	tracker     *delinquency.Tracker
	executor    *delivery.Executor
	engine      *delivery.Engine
	sweeper     *retention.Sweeper
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *slog.Logger
	lookup      resolver.LookupFunc
}

// New creates a new engine with the given options.
func New(opts ...Option) (*Hookpost, error) {
	h := &Hookpost{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	h.wireServices()
	return h, nil
}

// wireServices initializes the internal services after options have been applied.
func (h *Hookpost) wireServices() {
	h.catalog = catalog.NewCatalog(h.store, catalog.Config{
		CacheTTL: h.config.CacheTTL,
	}, h.logger)

	h.validator = catalog.NewValidator()

	h.endpointSvc = endpoint.NewService(h.store, h.logger)

	h.resolver = resolver.New(resolver.Config{
		Blocked: h.config.BlockedRanges,
		Lookup:  h.lookup,
	})

	h.limiter = ratelimit.New()

	h.tracker = delinquency.NewTracker(h.store, delinquency.Config{
		Threshold: h.config.DelinquencyThreshold,
		Window:    h.config.DelinquencyWindow,
		Metrics:   h.metrics,
	}, h.logger)

	h.executor = delivery.NewExecutor(h.store, h.resolver, h.tracker, h.limiter, delivery.ExecutorConfig{
		ConnectTimeout:   h.config.ConnectTimeout,
		ReadTimeout:      h.config.ReadTimeout,
		MaxResponseBytes: h.config.MaxResponseBytes,
		Metrics:          h.metrics,
		Tracer:           h.tracer,
	}, h.logger)

	h.engine = delivery.NewEngine(h.store, h.executor, delivery.EngineConfig{
		Concurrency:     h.config.Concurrency,
		PollInterval:    h.config.PollInterval,
		BatchSize:       h.config.BatchSize,
		ShutdownTimeout: h.config.ShutdownTimeout,
	}, h.logger)

	h.sweeper = retention.NewSweeper(h.store, retention.Config{
		Horizon:  h.config.RetentionHorizon,
		Interval: h.config.SweepInterval,
		Metrics:  h.metrics,
	}, h.logger)
}

// Start begins the delivery worker pool and the retention sweeper.
func (h *Hookpost) Start(ctx context.Context) {
	h.engine.Start(ctx)
	h.sweeper.Start(ctx)
}

// Stop gracefully shuts down the worker pool and the sweeper.
func (h *Hookpost) Stop(ctx context.Context) {
	h.engine.Stop(ctx)
	h.sweeper.Stop(ctx)
}

// RegisterEventType registers a webhook event type definition in the catalog.
func (h *Hookpost) RegisterEventType(ctx context.Context, def catalog.Definition) (*catalog.EventType, error) {
	return h.catalog.RegisterType(ctx, def)
}

// Dispatch validates and persists an event, then fans out one pending
// delivery per enabled subscribed endpoint.
//
// Dispatch may be invoked more than once for the same event (at-least-once
// external triggering): stores enforce (event, endpoint) uniqueness and
// duplicate deliveries are silently skipped, so re-dispatch creates at most
// one delivery per pair. Deliveries complete in no particular order across
// endpoints.
func (h *Hookpost) Dispatch(ctx context.Context, evt *event.Event) error {
	et, err := h.catalog.GetType(ctx, evt.Type)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEventTypeNotFound, evt.Type)
	}

	if et.IsDeprecated {
		return fmt.Errorf("%w: %s", ErrEventTypeDeprecated, evt.Type)
	}

	if len(et.Definition.Schema) > 0 {
		if validateErr := h.validator.Validate(et.Definition.Schema, evt.Data); validateErr != nil {
			return fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
		}
	}

	// A nil ID means a fresh event; a set ID means re-dispatch of a
	// persisted one, which stores treat as a no-op create.
	if evt.ID.IsNil() {
		evt.Entity = entity.New()
		evt.ID = id.NewEventID()
	}

	if createErr := h.store.CreateEvent(ctx, evt); createErr != nil {
		if errors.Is(createErr, ErrDuplicateIdempotencyKey) {
			return nil // idempotent: already processed
		}
		return fmt.Errorf("hookpost: persist event: %w", createErr)
	}

	endpoints, err := h.store.Resolve(ctx, evt.TenantID, evt.Type)
	if err != nil {
		return fmt.Errorf("hookpost: resolve endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		return nil // no matching endpoints — nothing to deliver
	}

	deliveries := make([]*delivery.Delivery, 0, len(endpoints))
	for _, ep := range endpoints {
		d := &delivery.Delivery{
			Entity:     entity.New(),
			ID:         id.NewDeliveryID(),
			EventID:    evt.ID,
			EndpointID: ep.ID,
			State:      delivery.StatePending,
		}
		deliveries = append(deliveries, d)
	}

	created, err := h.store.EnqueueBatch(ctx, deliveries)
	if err != nil {
		return fmt.Errorf("hookpost: enqueue deliveries: %w", err)
	}

	if h.metrics != nil {
		h.metrics.EventsDispatched.Inc()
		h.metrics.PendingDeliveries.Add(float64(created))
	}

	h.logger.DebugContext(ctx, "event dispatched",
		"event_id", evt.ID,
		"type", evt.Type,
		"endpoints", len(endpoints),
		"deliveries", created,
	)

	return nil
}

// Execute runs one pending delivery to a terminal state. This is the entry
// point an external task scheduler calls; the built-in worker pool uses it
// too.
func (h *Hookpost) Execute(ctx context.Context, d *delivery.Delivery) error {
	return h.executor.Execute(ctx, d)
}

// Sweep deletes delivery records older than the retention horizon. Exposed
// for external schedulers; the built-in sweeper calls it periodically.
func (h *Hookpost) Sweep(ctx context.Context, now time.Time) (int64, error) {
	return h.sweeper.Sweep(ctx, now)
}

// Endpoints returns the endpoint management service.
func (h *Hookpost) Endpoints() *endpoint.Service {
	return h.endpointSvc
}

// Catalog returns the event type catalog.
func (h *Hookpost) Catalog() *catalog.Catalog {
	return h.catalog
}

// Store returns the underlying store.
func (h *Hookpost) Store() store.Store {
	return h.store
}
