package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sydlexius/confluence/internal/catalog"
	"github.com/sydlexius/confluence/internal/reconcile"
)

type sidecarRepo struct {
	tx *sqlx.Tx
}

// Save indexes e under keys. A key already held by another entity of the
// same type keeps its first owner.
func (r *sidecarRepo) Save(ctx context.Context, e catalog.Entity, keys []reconcile.Key) error {
	for _, k := range keys {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO normalization_sidecar (entity_type, entity_id, norm_key)
			VALUES (?, ?, ?)
			ON CONFLICT (entity_type, norm_key) DO NOTHING`,
			string(e.EntityType()), e.Base().ID, k.String(),
		)
		if err != nil {
			return fmt.Errorf("saving key %s: %w", k, err)
		}
	}
	return nil
}

type sidecarRow struct {
	NormKey string `db:"norm_key"`
	entityRow
}

func (r *sidecarRepo) FindByKeys(ctx context.Context, t catalog.EntityType, keys []reconcile.Key) (map[string]catalog.Entity, error) {
	if len(keys) == 0 {
		return map[string]catalog.Entity{}, nil
	}
	encoded := make([]string, len(keys))
	for i, k := range keys {
		encoded[i] = k.String()
	}
	query, args, err := sqlx.In(`
		SELECT s.norm_key, `+entityColumns+`
		FROM normalization_sidecar s JOIN entities e ON e.id = s.entity_id
		WHERE s.entity_type = ? AND s.norm_key IN (?)`,
		string(t), encoded)
	if err != nil {
		return nil, fmt.Errorf("building key lookup: %w", err)
	}

	var rows []sidecarRow
	if err := r.tx.SelectContext(ctx, &rows, r.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("finding %s by keys: %w", t, err)
	}
	out := make(map[string]catalog.Entity, len(rows))
	for _, row := range rows {
		e, err := row.decode()
		if err != nil {
			return nil, err
		}
		out[row.NormKey] = e
	}
	return out, nil
}
