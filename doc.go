// Package hookpost provides an outbound webhook delivery engine for Go.
//
// Hookpost is a library — not a service. Import it into your application to
// fan application events out to registered endpoints, with HMAC-SHA256
// signed payloads, SSRF-safe pinned connections, per-endpoint failure
// accounting that deactivates chronically failing endpoints, and bounded
// retention of delivery records.
//
// Key features:
//   - SSRF defense: destinations are resolved up front, filtered against
//     private/loopback/link-local/metadata ranges, and the connection is
//     pinned to the vetted address to defeat DNS rebinding
//   - Explicit delivery state machine (pending → in_progress → completed |
//     errored) with persisted request/response snapshots
//   - Delinquency tracking: ten consecutive failures spanning more than an
//     hour deactivate the endpoint until an operator re-enables it
//   - Composable store pattern with Memory, Redis, and Postgres backends
//   - Event type catalog with JSON Schema payload validation
//   - Per-endpoint rate limiting, Prometheus metrics, OpenTelemetry spans
//
// Quick start:
//
//	hp, err := hookpost.New(
//	    hookpost.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	hp.RegisterEventType(ctx, catalog.Definition{
//	    Name:    "invoice.created",
//	    Version: "2025-01-01",
//	})
//
//	hp.Dispatch(ctx, &event.Event{
//	    Type:     "invoice.created",
//	    TenantID: "tenant_123",
//	    Data:     map[string]any{"invoice_id": "inv_01h..."},
//	})
//
//	hp.Start(ctx) // built-in worker pool + retention sweeper
package hookpost
