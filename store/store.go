// Package store defines the composite Store interface for all hookpost
// persistence.
//
// Each subsystem defines its own store interface; the aggregate Store
// composes them all. The engine assumes at least read-your-writes
// consistency within a single worker's own operations.
package store

import (
	"context"

	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/delinquency"
	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/event"
)

// Store is the aggregate persistence interface.
type Store interface {
	catalog.Store
	endpoint.Store
	event.Store
	delivery.Store
	delinquency.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
