package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hookpost/hookpost/delinquency"
	"github.com/hookpost/hookpost/id"
)

// GetDelinquency returns the record for an endpoint; a streak-free endpoint
// yields a zero record.
func (s *Store) GetDelinquency(ctx context.Context, epID id.ID) (*delinquency.Record, error) {
	rec := &delinquency.Record{EndpointID: epID}
	err := s.db.QueryRow(ctx, `
		SELECT failure_count, first_failure_at
		FROM hookpost_delinquency WHERE endpoint_id = $1
	`, epID.String()).Scan(&rec.FailureCount, &rec.FirstFailureAt)
	if err != nil {
		if isNoRows(err) {
			return rec, nil
		}
		return nil, fmt.Errorf("hookpost/postgres: get delinquency: %w", err)
	}
	return rec, nil
}

// ResetDelinquency clears the endpoint's failure streak.
func (s *Store) ResetDelinquency(ctx context.Context, epID id.ID) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM hookpost_delinquency WHERE endpoint_id = $1`, epID.String()); err != nil {
		return fmt.Errorf("hookpost/postgres: reset delinquency: %w", err)
	}
	return nil
}

// BumpDelinquency atomically increments the failure counter, stamping
// FirstFailureAt when this failure starts a new streak. The single upsert
// statement makes concurrent bumps for one endpoint serialize in the
// database rather than lose updates.
func (s *Store) BumpDelinquency(ctx context.Context, epID id.ID, now time.Time) (*delinquency.Record, error) {
	rec := &delinquency.Record{EndpointID: epID}
	err := s.db.QueryRow(ctx, `
		INSERT INTO hookpost_delinquency (endpoint_id, failure_count, first_failure_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (endpoint_id) DO UPDATE
		SET failure_count = hookpost_delinquency.failure_count + 1
		RETURNING failure_count, first_failure_at
	`, epID.String(), now).Scan(&rec.FailureCount, &rec.FirstFailureAt)
	if err != nil {
		return nil, fmt.Errorf("hookpost/postgres: bump delinquency: %w", err)
	}
	return rec, nil
}
