package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sydlexius/confluence/internal/catalog"
)

// ErrExternalIDTaken is returned when an external id is already attached to
// a different entity.
var ErrExternalIDTaken = errors.New("external id belongs to another entity")

type entityRow struct {
	ID         string         `db:"id"`
	EntityType string         `db:"entity_type"`
	RedirectID sql.NullString `db:"redirect_id"`
	Payload    string         `db:"payload"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  string         `db:"updated_at"`
}

func (r entityRow) decode() (catalog.Entity, error) {
	e, err := catalog.Unmarshal(catalog.EntityType(r.EntityType), []byte(r.Payload))
	if err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", r.EntityType, r.ID, err)
	}
	e.Base().ID = r.ID
	e.Base().Redirect = r.RedirectID.String
	return e, nil
}

const entityColumns = `e.id, e.entity_type, e.redirect_id, e.payload, e.created_at, e.updated_at`

type entityRepo struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *entityRepo) Add(ctx context.Context, e catalog.Entity) error {
	payload, err := catalog.Marshal(e)
	if err != nil {
		return err
	}
	now := formatTime(r.now())
	rec := e.Base()
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, redirect_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(e.EntityType()), nullable(rec.Redirect), string(payload), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting %s %s: %w", e.EntityType(), rec.ID, err)
	}
	return r.saveExternalIDs(ctx, e)
}

func (r *entityRepo) Update(ctx context.Context, e catalog.Entity) error {
	payload, err := catalog.Marshal(e)
	if err != nil {
		return err
	}
	rec := e.Base()
	res, err := r.tx.ExecContext(ctx, `
		UPDATE entities SET redirect_id = ?, payload = ?, updated_at = ?
		WHERE id = ? AND entity_type = ?`,
		nullable(rec.Redirect), string(payload), formatTime(r.now()), rec.ID, string(e.EntityType()),
	)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", e.EntityType(), rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating %s %s: %w", e.EntityType(), rec.ID, sql.ErrNoRows)
	}
	return r.saveExternalIDs(ctx, e)
}

// saveExternalIDs indexes every external id of e under its own id.
func (r *entityRepo) saveExternalIDs(ctx context.Context, e catalog.Entity) error {
	rec := e.Base()
	for _, ext := range rec.ExternalIDs {
		var owner string
		err := r.tx.GetContext(ctx, &owner,
			`SELECT entity_id FROM external_ids WHERE namespace = ? AND value = ?`,
			string(ext.Namespace), ext.Value)
		switch {
		case err == nil && owner == rec.ID:
			continue
		case err == nil:
			return fmt.Errorf("%s %s on %s %s (owned by %s): %w",
				ext.Namespace, ext.Value, e.EntityType(), rec.ID, owner, ErrExternalIDTaken)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("looking up external id %s %s: %w", ext.Namespace, ext.Value, err)
		}

		created := r.now()
		if ext.CreatedAt != nil {
			created = *ext.CreatedAt
		}
		_, err = r.tx.ExecContext(ctx, `
			INSERT INTO external_ids (namespace, value, entity_type, entity_id, provider, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(ext.Namespace), ext.Value, string(e.EntityType()), rec.ID, string(ext.Provider), formatTime(created),
		)
		if err != nil {
			return fmt.Errorf("inserting external id %s %s: %w", ext.Namespace, ext.Value, err)
		}
	}
	return nil
}

func (r *entityRepo) Get(ctx context.Context, t catalog.EntityType, id string) (catalog.Entity, error) {
	var row entityRow
	err := r.tx.GetContext(ctx, &row,
		`SELECT `+entityColumns+` FROM entities e WHERE e.id = ? AND e.entity_type = ?`, id, string(t))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", t, id, err)
	}
	return row.decode()
}

func (r *entityRepo) GetByExternalID(ctx context.Context, ns catalog.Namespace, value string) (catalog.Entity, error) {
	var row entityRow
	err := r.tx.GetContext(ctx, &row, `
		SELECT `+entityColumns+`
		FROM external_ids x JOIN entities e ON e.id = x.entity_id
		WHERE x.namespace = ? AND x.value = ?`,
		string(ns), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity by %s %s: %w", ns, value, err)
	}
	return row.decode()
}
