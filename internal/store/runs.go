package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/confluence/internal/reconcile"
)

// RunStatus is the outcome of a reconcile run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records one reconcile invocation against one batch.
type Run struct {
	ID                string     `json:"id"`
	BatchID           string     `json:"batch_id,omitempty"`
	File              string     `json:"file,omitempty"`
	Status            RunStatus  `json:"status"`
	Claims            int        `json:"claims"`
	Created           int        `json:"created"`
	Merged            int        `json:"merged"`
	Skipped           int        `json:"skipped"`
	ManualReview      int        `json:"manual_review"`
	PersistedEntities int        `json:"persisted_entities"`
	PersistedEvents   int        `json:"persisted_events"`
	Error             string     `json:"error,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// Finish fills in the outcome of the run.
func (r *Run) Finish(applied reconcile.ApplyResult, persisted reconcile.PersistenceResult, err error, at time.Time) {
	r.Created = applied.Created
	r.Merged = applied.Merged
	r.Skipped = applied.Skipped
	r.ManualReview = applied.ManualReview
	r.PersistedEntities = persisted.PersistedEntities
	r.PersistedEvents = persisted.PersistedEvents
	r.Status = RunSucceeded
	if err != nil {
		r.Status = RunFailed
		r.Error = err.Error()
	}
	r.FinishedAt = &at
}

type runRow struct {
	ID                string         `db:"id"`
	BatchID           string         `db:"batch_id"`
	File              string         `db:"file"`
	Status            string         `db:"status"`
	Claims            int            `db:"claims"`
	Created           int            `db:"created"`
	Merged            int            `db:"merged"`
	Skipped           int            `db:"skipped"`
	ManualReview      int            `db:"manual_review"`
	PersistedEntities int            `db:"persisted_entities"`
	PersistedEvents   int            `db:"persisted_events"`
	Error             string         `db:"error"`
	StartedAt         string         `db:"started_at"`
	FinishedAt        sql.NullString `db:"finished_at"`
}

func (row runRow) toRun() Run {
	r := Run{
		ID:                row.ID,
		BatchID:           row.BatchID,
		File:              row.File,
		Status:            RunStatus(row.Status),
		Claims:            row.Claims,
		Created:           row.Created,
		Merged:            row.Merged,
		Skipped:           row.Skipped,
		ManualReview:      row.ManualReview,
		PersistedEntities: row.PersistedEntities,
		PersistedEvents:   row.PersistedEvents,
		Error:             row.Error,
		StartedAt:         parseTime(row.StartedAt),
	}
	if row.FinishedAt.Valid {
		t := parseTime(row.FinishedAt.String)
		r.FinishedAt = &t
	}
	return r
}

// StartRun inserts a running record for a batch.
func (s *Store) StartRun(ctx context.Context, batchID, file string, claims int) (*Run, error) {
	r := &Run{
		ID:        uuid.New().String(),
		BatchID:   batchID,
		File:      file,
		Status:    RunRunning,
		Claims:    claims,
		StartedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconcile_runs (id, batch_id, file, status, claims, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.BatchID, r.File, string(r.Status), r.Claims, formatTime(r.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	return r, nil
}

// FinishRun stores the outcome recorded on r.
func (s *Store) FinishRun(ctx context.Context, r *Run) error {
	var finished sql.NullString
	if r.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*r.FinishedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE reconcile_runs SET
			status = ?, created = ?, merged = ?, skipped = ?, manual_review = ?,
			persisted_entities = ?, persisted_events = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(r.Status), r.Created, r.Merged, r.Skipped, r.ManualReview,
		r.PersistedEntities, r.PersistedEvents, r.Error, finished, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, batch_id, file, status, claims, created, merged, skipped, manual_review,
			persisted_entities, persisted_events, error, started_at, finished_at
		FROM reconcile_runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]Run, len(rows))
	for i, row := range rows {
		out[i] = row.toRun()
	}
	return out, nil
}

// CountEntities returns the number of canonical entities per type.
func (s *Store) CountEntities(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		EntityType string `db:"entity_type"`
		N          int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT entity_type, COUNT(*) AS n FROM entities
		WHERE redirect_id IS NULL GROUP BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("counting entities: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.EntityType] = row.N
	}
	return out, nil
}
