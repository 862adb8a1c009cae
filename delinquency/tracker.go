package delinquency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/observability"
)

// DisabledReason is recorded on endpoints the tracker deactivates.
const DisabledReason = "delinquent"

// Config holds tracker configuration.
type Config struct {
	// Threshold is the consecutive-failure count at which an endpoint
	// becomes eligible for deactivation.
	Threshold int

	// Window is how old the streak's first failure must be before the
	// threshold deactivates the endpoint. A burst of failures within
	// seconds disables quickly once the window has elapsed; the age check
	// stops a stale FirstFailureAt plus isolated later failures from
	// counting as a live streak.
	Window time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time

	Metrics *observability.Metrics
}

// Tracker applies delivery outcomes to per-endpoint delinquency records and
// deactivates endpoints that exceed the threshold past the window.
type Tracker struct {
	store  Store
	config Config
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker creates a delinquency tracker.
func NewTracker(store Store, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:  store,
		config: cfg,
		now:    now,
		logger: logger,
	}
}

// RecordOutcome applies one terminal delivery outcome for the endpoint.
//
// A success clears the streak. A failure increments it and, when the counter
// has reached the threshold AND the streak is older than the window, flips
// the endpoint's active flag to false. Deactivation is one-way: once
// disabled, no further deliveries are dispatched, so no success can arrive
// to reset the streak — re-enabling is an administrative action on the
// endpoint service.
func (t *Tracker) RecordOutcome(ctx context.Context, ep *endpoint.Endpoint, succeeded bool) error {
	if succeeded {
		if err := t.store.ResetDelinquency(ctx, ep.ID); err != nil {
			return fmt.Errorf("delinquency: reset %s: %w", ep.ID, err)
		}
		return nil
	}

	now := t.now().UTC()
	rec, err := t.store.BumpDelinquency(ctx, ep.ID, now)
	if err != nil {
		return fmt.Errorf("delinquency: bump %s: %w", ep.ID, err)
	}

	if rec.FailureCount < t.config.Threshold {
		return nil
	}
	if rec.FirstFailureAt == nil || now.Sub(*rec.FirstFailureAt) <= t.config.Window {
		return nil
	}

	changed, err := t.store.SetEnabled(ctx, ep.ID, false, DisabledReason)
	if err != nil {
		return fmt.Errorf("delinquency: disable %s: %w", ep.ID, err)
	}
	if changed {
		// There is no synchronous caller to notify; the log line and the
		// counter are the operational signal.
		t.logger.WarnContext(ctx, "endpoint deactivated for delinquency",
			"endpoint_id", ep.ID,
			"tenant_id", ep.TenantID,
			"failure_count", rec.FailureCount,
			"first_failure_at", rec.FirstFailureAt,
		)
		if t.config.Metrics != nil {
			t.config.Metrics.EndpointsDisabled.Inc()
		}
	}

	return nil
}
