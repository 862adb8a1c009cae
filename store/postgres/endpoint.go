package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/id"
)

const endpointColumns = `id, tenant_id, url, description, secret, event_types, headers, enabled, disabled_at, disabled_reason, rate_limit, created_at, updated_at`

func scanEndpoint(row interface{ Scan(...any) error }) (*endpoint.Endpoint, error) {
	var (
		ep      endpoint.Endpoint
		rawID   string
		headers []byte
	)
	err := row.Scan(
		&rawID,
		&ep.TenantID,
		&ep.URL,
		&ep.Description,
		&ep.Secret,
		&ep.EventTypes,
		&headers,
		&ep.Enabled,
		&ep.DisabledAt,
		&ep.DisabledReason,
		&ep.RateLimit,
		&ep.CreatedAt,
		&ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	epID, err := id.ParseEndpointID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", rawID, err)
	}
	ep.ID = epID
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &ep.Headers); err != nil {
			return nil, fmt.Errorf("decode endpoint headers: %w", err)
		}
	}
	return &ep, nil
}

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	headers, err := json.Marshal(ep.Headers)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: encode endpoint headers: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO hookpost_endpoints
			(id, tenant_id, url, description, secret, event_types, headers,
			 enabled, disabled_at, disabled_reason, rate_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, ep.ID.String(), ep.TenantID, ep.URL, ep.Description, ep.Secret,
		ep.EventTypes, headers, ep.Enabled, ep.DisabledAt, ep.DisabledReason,
		ep.RateLimit, ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: create endpoint: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM hookpost_endpoints WHERE id = $1`, epID.String())

	ep, err := scanEndpoint(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hookpost.ErrEndpointNotFound
		}
		return nil, fmt.Errorf("hookpost/postgres: get endpoint: %w", err)
	}
	return ep, nil
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	headers, err := json.Marshal(ep.Headers)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: encode endpoint headers: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE hookpost_endpoints SET
			url = $2, description = $3, secret = $4, event_types = $5,
			headers = $6, enabled = $7, disabled_at = $8, disabled_reason = $9,
			rate_limit = $10, updated_at = NOW()
		WHERE id = $1
	`, ep.ID.String(), ep.URL, ep.Description, ep.Secret, ep.EventTypes,
		headers, ep.Enabled, ep.DisabledAt, ep.DisabledReason, ep.RateLimit)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: update endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hookpost.ErrEndpointNotFound
	}
	return nil
}

// DeleteEndpoint removes an endpoint. Deliveries and the delinquency record
// cascade through foreign keys.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM hookpost_endpoints WHERE id = $1`, epID.String())
	if err != nil {
		return fmt.Errorf("hookpost/postgres: delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hookpost.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, tenantID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM hookpost_endpoints WHERE tenant_id = $1`
	args := []any{tenantID}
	if opts.Enabled != nil {
		q += fmt.Sprintf(` AND enabled = $%d`, len(args)+1)
		args = append(args, *opts.Enabled)
	}
	q += ` ORDER BY created_at`
	if opts.Limit > 0 {
		q += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		q += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("hookpost/postgres: list endpoints: %w", err)
	}
	defer rows.Close()

	var result []*endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("hookpost/postgres: list endpoints scan: %w", err)
		}
		result = append(result, ep)
	}
	return result, rows.Err()
}

// Resolve finds all enabled endpoints subscribed to an event type for a
// tenant. Glob matching runs in Go; the query narrows to enabled endpoints
// of the tenant.
func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+endpointColumns+` FROM hookpost_endpoints
		 WHERE tenant_id = $1 AND enabled ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("hookpost/postgres: resolve: %w", err)
	}
	defer rows.Close()

	var result []*endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("hookpost/postgres: resolve scan: %w", err)
		}
		for _, pattern := range ep.EventTypes {
			if catalog.Match(pattern, eventType) {
				result = append(result, ep)
				break
			}
		}
	}
	return result, rows.Err()
}

// SetEnabled flips the endpoint's active flag, reporting whether it changed.
// Re-enabling clears the endpoint's delinquency record so a stale streak
// cannot immediately re-disable it.
func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool, reason string) (bool, error) {
	var (
		disabledAt     *time.Time
		disabledReason string
	)
	if !enabled {
		ts := time.Now().UTC()
		disabledAt = &ts
		disabledReason = reason
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE hookpost_endpoints
		SET enabled = $2, disabled_at = $3, disabled_reason = $4, updated_at = NOW()
		WHERE id = $1 AND enabled <> $2
	`, epID.String(), enabled, disabledAt, disabledReason)
	if err != nil {
		return false, fmt.Errorf("hookpost/postgres: set enabled: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Unchanged or missing; distinguish the two.
		var exists bool
		err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM hookpost_endpoints WHERE id = $1)`,
			epID.String()).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("hookpost/postgres: set enabled exists: %w", err)
		}
		if !exists {
			return false, hookpost.ErrEndpointNotFound
		}
		return false, nil
	}

	if enabled {
		if _, err := s.db.Exec(ctx,
			`DELETE FROM hookpost_delinquency WHERE endpoint_id = $1`, epID.String()); err != nil {
			return true, fmt.Errorf("hookpost/postgres: set enabled reset delinquency: %w", err)
		}
	}
	return true, nil
}
