package postgres

// Schema DDL, applied in order by Migrate. Statements are idempotent so
// Migrate can run on every boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS hookpost_event_types (
		name            TEXT PRIMARY KEY,
		id              TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		schema          JSONB,
		version         TEXT NOT NULL DEFAULT '',
		is_deprecated   BOOLEAN NOT NULL DEFAULT FALSE,
		deprecated_at   TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS hookpost_endpoints (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		url             TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		secret          TEXT NOT NULL,
		event_types     TEXT[] NOT NULL DEFAULT '{}',
		headers         JSONB,
		enabled         BOOLEAN NOT NULL DEFAULT TRUE,
		disabled_at     TIMESTAMPTZ,
		disabled_reason TEXT NOT NULL DEFAULT '',
		rate_limit      INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_hookpost_endpoints_tenant
		ON hookpost_endpoints (tenant_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS hookpost_events (
		id              TEXT PRIMARY KEY,
		type            TEXT NOT NULL,
		tenant_id       TEXT NOT NULL,
		data            JSONB,
		idempotency_key TEXT,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_hookpost_events_idem
		ON hookpost_events (idempotency_key)
		WHERE idempotency_key IS NOT NULL`,

	`CREATE INDEX IF NOT EXISTS idx_hookpost_events_created
		ON hookpost_events (created_at)`,

	`CREATE TABLE IF NOT EXISTS hookpost_deliveries (
		id           TEXT PRIMARY KEY,
		event_id     TEXT NOT NULL REFERENCES hookpost_events (id) ON DELETE CASCADE,
		endpoint_id  TEXT NOT NULL REFERENCES hookpost_endpoints (id) ON DELETE CASCADE,
		state        TEXT NOT NULL,
		request      JSONB,
		response     JSONB,
		error        TEXT NOT NULL DEFAULT '',
		latency_ms   INTEGER NOT NULL DEFAULT 0,
		claimed_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		UNIQUE (event_id, endpoint_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_hookpost_deliveries_pending
		ON hookpost_deliveries (created_at)
		WHERE state = 'pending'`,

	`CREATE INDEX IF NOT EXISTS idx_hookpost_deliveries_endpoint
		ON hookpost_deliveries (endpoint_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_hookpost_deliveries_event
		ON hookpost_deliveries (event_id)`,

	`CREATE INDEX IF NOT EXISTS idx_hookpost_deliveries_created
		ON hookpost_deliveries (created_at)`,

	`CREATE TABLE IF NOT EXISTS hookpost_delinquency (
		endpoint_id      TEXT PRIMARY KEY REFERENCES hookpost_endpoints (id) ON DELETE CASCADE,
		failure_count    INTEGER NOT NULL DEFAULT 0,
		first_failure_at TIMESTAMPTZ
	)`,
}
