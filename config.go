package hookpost

import (
	"net/netip"
	"time"
)

// Config holds the configuration for an engine instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for pending deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries claimed per poll cycle.
	BatchSize int

	// ConnectTimeout bounds DNS resolution, TCP connect, and TLS handshake
	// for a single delivery attempt.
	ConnectTimeout time.Duration

	// ReadTimeout bounds waiting for and reading the response of a single
	// delivery attempt.
	ReadTimeout time.Duration

	// MaxResponseBytes caps how much of a response body is read and stored.
	// Bytes past the cap are discarded, not buffered.
	MaxResponseBytes int64

	// DelinquencyThreshold is the consecutive-failure count at which an
	// endpoint becomes eligible for deactivation.
	DelinquencyThreshold int

	// DelinquencyWindow is how old the first failure of a streak must be
	// before the threshold deactivates the endpoint.
	DelinquencyWindow time.Duration

	// RetentionHorizon is the age past which delivery records are deleted.
	RetentionHorizon time.Duration

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration

	// BlockedRanges are the address ranges the resolver refuses to deliver
	// to. Defaults to DefaultBlockedRanges.
	BlockedRanges []netip.Prefix

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on shutdown.
	ShutdownTimeout time.Duration

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Set to 0 to disable expiry.
	CacheTTL time.Duration
}

// DefaultBlockedRanges returns the address ranges rejected by the resolver:
// RFC 1918 private space, loopback, link-local (which covers the cloud
// metadata service at 169.254.169.254), "this network", and the IPv6
// loopback, link-local, and unique-local equivalents. Each call returns a
// fresh slice, so callers cannot mutate the defaults of other instances.
func DefaultBlockedRanges() []netip.Prefix {
	return []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("169.254.0.0/16"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("::1/128"),
		netip.MustParsePrefix("fc00::/7"),
		netip.MustParsePrefix("fe80::/10"),
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:          10,
		PollInterval:         1 * time.Second,
		BatchSize:            50,
		ConnectTimeout:       7 * time.Second,
		ReadTimeout:          7 * time.Second,
		MaxResponseBytes:     1 << 20, // 1 MiB
		DelinquencyThreshold: 10,
		DelinquencyWindow:    1 * time.Hour,
		RetentionHorizon:     7 * 24 * time.Hour,
		SweepInterval:        4 * time.Hour,
		BlockedRanges:        DefaultBlockedRanges(),
		ShutdownTimeout:      30 * time.Second,
		CacheTTL:             30 * time.Second,
	}
}
