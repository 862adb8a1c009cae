package hookpost_test

import (
	"net/netip"
	"testing"

	hookpost "github.com/hookpost/hookpost"
)

func TestDefaultBlockedRangesCoversMetadataService(t *testing.T) {
	addr := netip.MustParseAddr("169.254.169.254")

	blocked := false
	for _, p := range hookpost.DefaultBlockedRanges() {
		if p.Contains(addr) {
			blocked = true
		}
	}
	if !blocked {
		t.Error("default ranges do not cover the cloud metadata address")
	}
}

func TestDefaultBlockedRangesReturnsFreshCopy(t *testing.T) {
	a := hookpost.DefaultBlockedRanges()
	a[0] = netip.MustParsePrefix("203.0.113.0/24")

	b := hookpost.DefaultBlockedRanges()
	if b[0] == a[0] {
		t.Error("mutating the returned slice leaked into later calls")
	}
}
