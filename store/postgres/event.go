package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/event"
	"github.com/hookpost/hookpost/id"
)

const eventColumns = `id, type, tenant_id, data, idempotency_key, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*event.Event, error) {
	var (
		evt     event.Event
		rawID   string
		data    []byte
		idemKey *string
	)
	err := row.Scan(
		&rawID,
		&evt.Type,
		&evt.TenantID,
		&data,
		&idemKey,
		&evt.CreatedAt,
		&evt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	evtID, err := id.ParseEventID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", rawID, err)
	}
	evt.ID = evtID
	if idemKey != nil {
		evt.IdempotencyKey = *idemKey
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &evt.Data); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
	}
	return &evt, nil
}

// CreateEvent persists an event. Re-creating an event with a known ID is a
// no-op; a duplicate idempotency key returns ErrDuplicateIdempotencyKey.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: encode event data: %w", err)
	}

	var idemKey *string
	if evt.IdempotencyKey != "" {
		idemKey = &evt.IdempotencyKey
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO hookpost_events
			(id, type, tenant_id, data, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID.String(), evt.Type, evt.TenantID, data, idemKey,
		evt.CreatedAt, evt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "idx_hookpost_events_idem") {
			return hookpost.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("hookpost/postgres: create event: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM hookpost_events WHERE id = $1`, evtID.String())

	evt, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hookpost.ErrEventNotFound
		}
		return nil, fmt.Errorf("hookpost/postgres: get event: %w", err)
	}
	return evt, nil
}

// ListEvents returns events, optionally filtered by type or time range.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM hookpost_events WHERE TRUE`
	args := []any{}
	if opts.Type != "" {
		q += fmt.Sprintf(` AND type = $%d`, len(args)+1)
		args = append(args, opts.Type)
	}
	if opts.From != nil {
		q += fmt.Sprintf(` AND created_at >= $%d`, len(args)+1)
		args = append(args, *opts.From)
	}
	if opts.To != nil {
		q += fmt.Sprintf(` AND created_at <= $%d`, len(args)+1)
		args = append(args, *opts.To)
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
		return nil, fmt.Errorf("hookpost/postgres: list events: %w", err)
	}
	defer rows.Close()

	var result []*event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("hookpost/postgres: list events scan: %w", err)
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}
