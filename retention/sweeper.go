// Package retention deletes delivery records past the retention horizon.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hookpost/hookpost/observability"
)

// Store is the persistence surface the sweeper needs.
type Store interface {
	DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds sweeper configuration.
type Config struct {
	// Horizon is the age past which delivery records are deleted.
	Horizon time.Duration

	// Interval is how often the periodic sweep runs.
	Interval time.Duration

	Metrics *observability.Metrics
}

// Sweeper periodically deletes deliveries older than the retention horizon.
// Creation age is the only deletion criterion, so a sweep never touches
// in-flight records unless the horizon is shorter than a delivery's
// lifetime. Safe to run concurrently with dispatch and execution.
type Sweeper struct {
	store  Store
	config Config
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a retention sweeper.
func NewSweeper(store Store, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Sweep deletes every delivery created before now minus the horizon and
// returns how many were removed. Exposed so an external scheduler can drive
// sweeps on its own cadence.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.config.Horizon)

	swept, err := s.store.DeleteDeliveriesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: sweep before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if swept > 0 {
		s.logger.InfoContext(ctx, "swept delivery records",
			"swept", swept, "cutoff", cutoff)
		if s.config.Metrics != nil {
			s.config.Metrics.DeliveriesSwept.Add(float64(swept))
		}
	}

	return swept, nil
}

// Start begins the periodic sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx, time.Now().UTC()); err != nil {
					s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for a running sweep to finish.
func (s *Sweeper) Stop(_ context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
