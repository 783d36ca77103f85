package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/sydlexius/confluence/internal/catalog"
	"github.com/sydlexius/confluence/internal/reconcile"
)

// Review statuses.
const (
	ReviewOpen      = "open"
	ReviewDismissed = "dismissed"
)

type auditRepo struct {
	tx *sqlx.Tx
}

func (r *auditRepo) SaveMerge(ctx context.Context, m catalog.EntityMerge) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO entity_merges (id, entity_type, source_id, target_id, reason, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.EntityType), m.SourceID, m.TargetID, string(m.Reason), formatTime(m.CreatedAt), m.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("saving merge %s -> %s: %w", m.SourceID, m.TargetID, err)
	}
	return nil
}

func (r *auditRepo) SaveReview(ctx context.Context, item reconcile.ReviewItem) error {
	candidates := item.Candidates
	if candidates == nil {
		candidates = []string{}
	}
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("encoding review candidates: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO review_items (id, batch_id, claim_id, entity_type, reason, candidates, source, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.BatchID, item.ClaimID, string(item.EntityType), item.Reason,
		string(encoded), string(item.Source), string(item.Payload), ReviewOpen, formatTime(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving review item %s: %w", item.ID, err)
	}
	return nil
}

type reviewRow struct {
	ID         string `db:"id"`
	BatchID    string `db:"batch_id"`
	ClaimID    string `db:"claim_id"`
	EntityType string `db:"entity_type"`
	Reason     string `db:"reason"`
	Candidates string `db:"candidates"`
	Source     string `db:"source"`
	Payload    string `db:"payload"`
	Status     string `db:"status"`
	CreatedAt  string `db:"created_at"`
}

// Review is a persisted review item with its queue status.
type Review struct {
	reconcile.ReviewItem
	Status string `json:"status"`
}

// ListReviews returns review items with the given status, oldest first.
// An empty status lists every item.
func (s *Store) ListReviews(ctx context.Context, status string, limit int) ([]Review, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, batch_id, claim_id, entity_type, reason, candidates, source, payload, status, created_at
		FROM review_items`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit)

	var rows []reviewRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing review items: %w", err)
	}

	out := make([]Review, 0, len(rows))
	for _, row := range rows {
		var candidates []string
		if err := json.Unmarshal([]byte(row.Candidates), &candidates); err != nil {
			return nil, fmt.Errorf("decoding candidates of review %s: %w", row.ID, err)
		}
		out = append(out, Review{
			ReviewItem: reconcile.ReviewItem{
				ID:         row.ID,
				BatchID:    row.BatchID,
				ClaimID:    row.ClaimID,
				EntityType: catalog.EntityType(row.EntityType),
				Reason:     row.Reason,
				Candidates: candidates,
				Source:     catalog.Provider(row.Source),
				Payload:    []byte(row.Payload),
				CreatedAt:  parseTime(row.CreatedAt),
			},
			Status: row.Status,
		})
	}
	return out, nil
}

// SetReviewStatus changes the status of a review item.
func (s *Store) SetReviewStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE review_items SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating review %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("review %s not found", id)
	}
	return nil
}

type mergeRow struct {
	ID         string `db:"id"`
	EntityType string `db:"entity_type"`
	SourceID   string `db:"source_id"`
	TargetID   string `db:"target_id"`
	Reason     string `db:"reason"`
	CreatedAt  string `db:"created_at"`
	CreatedBy  string `db:"created_by"`
}

// MergesInto returns the merge audit records that point at target.
func (s *Store) MergesInto(ctx context.Context, target string) ([]catalog.EntityMerge, error) {
	var rows []mergeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, entity_type, source_id, target_id, reason, created_at, created_by
		FROM entity_merges WHERE target_id = ? ORDER BY created_at, id`, target)
	if err != nil {
		return nil, fmt.Errorf("listing merges into %s: %w", target, err)
	}
	out := make([]catalog.EntityMerge, len(rows))
	for i, row := range rows {
		out[i] = catalog.EntityMerge{
			ID:         row.ID,
			EntityType: catalog.EntityType(row.EntityType),
			SourceID:   row.SourceID,
			TargetID:   row.TargetID,
			Reason:     catalog.MergeReason(row.Reason),
			CreatedAt:  parseTime(row.CreatedAt),
			CreatedBy:  row.CreatedBy,
		}
	}
	return out, nil
}
