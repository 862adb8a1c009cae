package postgres

import (
	"context"
	"fmt"
	"time"

	hookpost "github.com/hookpost/hookpost"
	"github.com/hookpost/hookpost/catalog"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/internal/entity"
)

const eventTypeColumns = `name, id, description, schema, version, is_deprecated, deprecated_at, created_at, updated_at`

func scanEventType(row interface{ Scan(...any) error }) (*catalog.EventType, error) {
	var (
		et     catalog.EventType
		rawID  string
		schema []byte
	)
	err := row.Scan(
		&et.Definition.Name,
		&rawID,
		&et.Definition.Description,
		&schema,
		&et.Definition.Version,
		&et.IsDeprecated,
		&et.DeprecatedAt,
		&et.CreatedAt,
		&et.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	etID, err := id.ParseEventTypeID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", rawID, err)
	}
	et.ID = etID
	et.Definition.Schema = schema
	return &et, nil
}

// RegisterType creates or updates an event type definition (upsert by name).
// Re-registering un-deprecates the type and keeps its original identity.
func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO hookpost_event_types
			(name, id, description, schema, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			description   = EXCLUDED.description,
			schema        = EXCLUDED.schema,
			version       = EXCLUDED.version,
			is_deprecated = FALSE,
			deprecated_at = NULL,
			updated_at    = EXCLUDED.updated_at
		RETURNING id, created_at
	`, et.Definition.Name, et.ID.String(), et.Definition.Description,
		[]byte(et.Definition.Schema), et.Definition.Version, et.CreatedAt, time.Now().UTC())

	var (
		rawID     string
		createdAt time.Time
	)
	if err := row.Scan(&rawID, &createdAt); err != nil {
		return fmt.Errorf("hookpost/postgres: register type: %w", err)
	}

	// Upsert keeps the original identity and creation time.
	etID, err := id.ParseEventTypeID(rawID)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: register type: %w", err)
	}
	et.ID = etID
	et.Entity = entity.Entity{CreatedAt: createdAt, UpdatedAt: time.Now().UTC()}
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+eventTypeColumns+` FROM hookpost_event_types WHERE name = $1`, name)

	et, err := scanEventType(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hookpost.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("hookpost/postgres: get type: %w", err)
	}
	return et, nil
}

// ListTypes returns registered event types ordered by name.
func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	q := `SELECT ` + eventTypeColumns + ` FROM hookpost_event_types`
	if !opts.IncludeDeprecated {
		q += ` WHERE NOT is_deprecated`
	}
	q += ` ORDER BY name`
	args := []any{}
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
		return nil, fmt.Errorf("hookpost/postgres: list types: %w", err)
	}
	defer rows.Close()

	var result []*catalog.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, fmt.Errorf("hookpost/postgres: list types scan: %w", err)
		}
		result = append(result, et)
	}
	return result, rows.Err()
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE hookpost_event_types
		SET is_deprecated = TRUE, deprecated_at = NOW(), updated_at = NOW()
		WHERE name = $1
	`, name)
	if err != nil {
		return fmt.Errorf("hookpost/postgres: delete type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hookpost.ErrEventTypeNotFound
	}
	return nil
}
