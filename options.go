package hookpost

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/hookpost/hookpost/observability"
	"github.com/hookpost/hookpost/resolver"
	"github.com/hookpost/hookpost/store"
)

// Option configures a Hookpost instance.
type Option func(*Hookpost) error

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(h *Hookpost) error {
		h.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hookpost) error {
		h.logger = logger
		return nil
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hookpost) error {
		h.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry delivery tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(h *Hookpost) error {
		h.tracer = t
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(h *Hookpost) error {
		h.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the worker pool checks for pending deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(h *Hookpost) error {
		h.config.BatchSize = n
		return nil
	}
}

// WithConnectTimeout bounds DNS resolution, TCP connect, and TLS handshake
// per delivery attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.ConnectTimeout = d
		return nil
	}
}

// WithReadTimeout bounds waiting for and reading the response per delivery
// attempt.
func WithReadTimeout(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.ReadTimeout = d
		return nil
	}
}

// WithMaxResponseBytes caps how much of a response body is read and stored.
func WithMaxResponseBytes(n int64) Option {
	return func(h *Hookpost) error {
		h.config.MaxResponseBytes = n
		return nil
	}
}

// WithDelinquencyThreshold sets the consecutive-failure count at which an
// endpoint becomes eligible for deactivation.
func WithDelinquencyThreshold(n int) Option {
	return func(h *Hookpost) error {
		h.config.DelinquencyThreshold = n
		return nil
	}
}

// WithDelinquencyWindow sets how old a failure streak must be before the
// threshold deactivates the endpoint.
func WithDelinquencyWindow(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.DelinquencyWindow = d
		return nil
	}
}

// WithRetentionHorizon sets the age past which delivery records are deleted.
func WithRetentionHorizon(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.RetentionHorizon = d
		return nil
	}
}

// WithSweepInterval sets how often the retention sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.SweepInterval = d
		return nil
	}
}

// WithBlockedRanges replaces the resolver's blocked address ranges.
// Loosening the default list widens the engine's SSRF exposure; meant for
// tests and for networks that are intentionally private.
func WithBlockedRanges(ranges []netip.Prefix) Option {
	return func(h *Hookpost) error {
		h.config.BlockedRanges = ranges
		return nil
	}
}

// WithResolverLookup overrides the resolver's DNS lookup function.
func WithResolverLookup(lookup resolver.LookupFunc) Option {
	return func(h *Hookpost) error {
		h.lookup = lookup
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries
// on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(h *Hookpost) error {
		h.config.CacheTTL = d
		return nil
	}
}
