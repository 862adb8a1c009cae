// Package resolver provides SSRF-safe address resolution for webhook
// destinations.
//
// Webhook URLs are attacker-influenced: a registered destination may point at
// private infrastructure, the loopback interface, or a cloud metadata
// service. The resolver performs the full DNS lookup up front, filters every
// candidate address against a blocklist of non-public ranges, and returns a
// single vetted address. The HTTP transport is then pinned to exactly that
// numeric address (see PinnedClient), so a name that re-resolves to a private
// address between check time and connect time never reaches it.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ErrNoPublicAddress is returned when every address a destination resolves to
// falls inside a blocked range. Deliveries failing this way are security
// rejections, never retried.
var ErrNoPublicAddress = errors.New("resolver: destination has no public address")

// LookupFunc resolves a hostname to its candidate addresses. The default is
// net.DefaultResolver.LookupNetIP; tests inject their own.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Config configures a Resolver.
type Config struct {
	// Blocked are the address ranges the resolver rejects.
	Blocked []netip.Prefix

	// Lookup overrides the DNS lookup. Nil means net.DefaultResolver.
	Lookup LookupFunc
}

// Resolver resolves hostnames to vetted public addresses.
type Resolver struct {
	blocked []netip.Prefix
	lookup  LookupFunc
}

// New creates a Resolver with the given configuration.
func New(cfg Config) *Resolver {
	lookup := cfg.Lookup
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		}
	}
	return &Resolver{
		blocked: cfg.Blocked,
		lookup:  lookup,
	}
}

// Resolve resolves hostname and returns the first address outside every
// blocked range. A hostname that is already an IP literal is checked without
// a DNS query. Returns ErrNoPublicAddress (wrapped with the hostname) when no
// candidate survives filtering; no connection is attempted in that case.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(hostname); err == nil {
		if r.Blocked(addr) {
			return netip.Addr{}, fmt.Errorf("%w: %s", ErrNoPublicAddress, hostname)
		}
		return addr.Unmap(), nil
	}

	addrs, err := r.lookup(ctx, hostname)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolver: lookup %s: %w", hostname, err)
	}

	for _, addr := range addrs {
		if !r.Blocked(addr) {
			return addr.Unmap(), nil
		}
	}

	return netip.Addr{}, fmt.Errorf("%w: %s", ErrNoPublicAddress, hostname)
}

// Blocked reports whether addr falls inside any blocked range. IPv4-mapped
// IPv6 addresses are unmapped first so ::ffff:10.0.0.1 cannot slip past the
// IPv4 prefixes.
func (r *Resolver) Blocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range r.blocked {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
