package catalog

import "strings"

// Match reports whether an event type name satisfies an endpoint
// subscription pattern. Patterns are dot-separated segments where "*"
// stands in for exactly one segment; a bare "*" subscribes to everything.
//
//	payment.captured   matches only payment.captured
//	payment.*          matches payment.captured, payment.refunded
//	*.failed           matches payment.failed, transfer.failed
func Match(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}

	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		n, nRest, nMore := strings.Cut(name, ".")

		if p != "*" && p != n {
			return false
		}
		// Segment counts must line up: "payment.*" does not cover
		// "payment.dispute.opened".
		if pMore != nMore {
			return false
		}
		if !pMore {
			return true
		}
		pattern, name = pRest, nRest
	}
}
