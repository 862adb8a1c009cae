package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/delivery"
	"github.com/hookpost/hookpost/id"
)

const deliveryColumns = `id, event_id, endpoint_id, state, request, response, error, latency_ms, completed_at, created_at, updated_at`

func scanDelivery(row interface{ Scan(...any) error }) (*delivery.Delivery, error) {
	var (
		d        delivery.Delivery
		rawID    string
		rawEvt   string
		rawEP    string
		request  []byte
		response []byte
	)
	err := row.Scan(
		&rawID,
		&rawEvt,
		&rawEP,
		&d.State,
		&request,
		&response,
		&d.Error,
		&d.LatencyMs,
		&d.CompletedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if d.ID, err = id.ParseDeliveryID(rawID); err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", rawID, err)
	}
	if d.EventID, err = id.ParseEventID(rawEvt); err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", rawEvt, err)
	}
	if d.EndpointID, err = id.ParseEndpointID(rawEP); err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", rawEP, err)
	}

	if len(request) > 0 {
		d.Request = new(delivery.RequestSnapshot)
		if err := json.Unmarshal(request, d.Request); err != nil {
			return nil, fmt.Errorf("decode request snapshot: %w", err)
		}
	}
	if len(response) > 0 {
		d.Response = new(delivery.ResponseSnapshot)
		if err := json.Unmarshal(response, d.Response); err != nil {
			return nil, fmt.Errorf("decode response snapshot: %w", err)
		}
	}
	return &d, nil
}

func encodeSnapshots(d *delivery.Delivery) (request, response []byte, err error) {
	if d.Request != nil {
		if request, err = json.Marshal(d.Request); err != nil {
			return nil, nil, fmt.Errorf("encode request snapshot: %w", err)
		}
	}
	if d.Response != nil {
		if response, err = json.Marshal(d.Response); err != nil {
			return nil, nil, fmt.Errorf("encode response snapshot: %w", err)
		}
	}
	return request, response, nil
}

// Enqueue creates a pending delivery, enforcing (event, endpoint) uniqueness.
func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	request, response, err := encodeSnapshots(d)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: enqueue: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO hookpost_deliveries
			(id, event_id, endpoint_id, state, request, response, error,
			 latency_ms, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, endpoint_id) DO NOTHING
	`, d.ID.String(), d.EventID.String(), d.EndpointID.String(), string(d.State),
		request, response, d.Error, d.LatencyMs, d.CompletedAt,
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: enqueue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hookpost.ErrDuplicateDelivery
	}
	return nil
}

// EnqueueBatch creates multiple pending deliveries, skipping (event, endpoint)
// pairs that already exist. Returns the number actually created.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) (int, error) {
	created := 0
	for _, d := range ds {
		if err := s.Enqueue(ctx, d); err != nil {
			if err == hookpost.ErrDuplicateDelivery {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

// Dequeue claims up to limit pending deliveries, oldest first. SKIP LOCKED
// keeps concurrent pollers from claiming the same row; the claimed_at stamp
// keeps the row out of later polls while the worker runs it to a terminal
// state.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE hookpost_deliveries
		SET claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM hookpost_deliveries
			WHERE state = 'pending' AND claimed_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+deliveryColumns, limit)
	if err != nil {
		return nil, fmt.Errorf("hookpost/postgres: dequeue: %w", err)
	}
	defer rows.Close()

	var result []*delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("hookpost/postgres: dequeue scan: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// UpdateDelivery persists a state transition and its snapshots.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	request, response, err := encodeSnapshots(d)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: update delivery: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE hookpost_deliveries SET
			state = $2, request = $3, response = $4, error = $5,
			latency_ms = $6, completed_at = $7, updated_at = NOW()
		WHERE id = $1
	`, d.ID.String(), string(d.State), request, response, d.Error,
		d.LatencyMs, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hookpost.ErrDeliveryNotFound
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM hookpost_deliveries WHERE id = $1`,
		delID.String())

	d, err := scanDelivery(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hookpost.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("hookpost/postgres: get delivery: %w", err)
	}
	return d, nil
}

// ListByEndpoint returns delivery history for an endpoint, newest first.
func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM hookpost_deliveries WHERE endpoint_id = $1`
	args := []any{epID.String()}
	if opts.State != nil {
		q += fmt.Sprintf(` AND state = $%d`, len(args)+1)
		args = append(args, string(*opts.State))
	}
	q += ` ORDER BY created_at DESC`
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
		return nil, fmt.Errorf("hookpost/postgres: list by endpoint: %w", err)
	}
	defer rows.Close()

	var result []*delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("hookpost/postgres: list by endpoint scan: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// ListByEvent returns all deliveries for a specific event.
func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+deliveryColumns+` FROM hookpost_deliveries
		 WHERE event_id = $1 ORDER BY created_at`, evtID.String())
	if err != nil {
		return nil, fmt.Errorf("hookpost/postgres: list by event: %w", err)
	}
	defer rows.Close()

	var result []*delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("hookpost/postgres: list by event scan: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM hookpost_deliveries WHERE state = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("hookpost/postgres: count pending: %w", err)
	}
	return n, nil
}

// DeleteDeliveriesBefore deletes every delivery created before cutoff.
func (s *Store) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM hookpost_deliveries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("hookpost/postgres: sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}
