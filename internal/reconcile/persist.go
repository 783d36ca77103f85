package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
)

// PersistenceResult reports what one commit wrote.
type PersistenceResult struct {
	Committed         bool
	PersistedEntities int
	PersistedEvents   int
}

// Persister writes a changeset through a unit of work.
type Persister struct {
	logger *slog.Logger
}

// NewPersister creates a persister.
func NewPersister(logger *slog.Logger) *Persister {
	return &Persister{logger: logger.With("component", "persister")}
}

// Persist writes everything staged in applied and commits. On any failure
// the unit of work is rolled back and nothing from the batch is kept.
func (p *Persister) Persist(ctx context.Context, uow UnitOfWork, instructions Instructions, applied ApplyResult) (PersistenceResult, error) {
	if applied.Changes == nil {
		return PersistenceResult{}, multierr.Append(
			invariantf("apply result for %d instructions carries no changeset", len(instructions)),
			uow.Rollback(),
		)
	}
	res, err := p.write(ctx, uow, applied.Changes)
	if err != nil {
		return PersistenceResult{}, multierr.Append(err, uow.Rollback())
	}
	if err := uow.Commit(); err != nil {
		return PersistenceResult{}, fmt.Errorf("committing batch: %w", err)
	}
	res.Committed = true
	p.logger.Debug("persisted batch",
		"instructions", len(instructions),
		"entities", res.PersistedEntities,
		"events", res.PersistedEvents,
	)
	return res, nil
}

func (p *Persister) write(ctx context.Context, uow UnitOfWork, cs *Changeset) (PersistenceResult, error) {
	var res PersistenceResult
	for _, e := range cs.Created.All() {
		if err := uow.Entities().Add(ctx, e); err != nil {
			return res, fmt.Errorf("adding %s %s: %w", e.EntityType(), e.Base().ID, err)
		}
		res.PersistedEntities++
	}
	for _, e := range cs.Updated.All() {
		if err := uow.Entities().Update(ctx, e); err != nil {
			return res, fmt.Errorf("updating %s %s: %w", e.EntityType(), e.Base().ID, err)
		}
		res.PersistedEntities++
	}
	for _, entry := range cs.Sidecar {
		if err := uow.Sidecar().Save(ctx, entry.Entity, entry.Keys); err != nil {
			return res, fmt.Errorf("saving keys of %s %s: %w", entry.Entity.EntityType(), entry.Entity.Base().ID, err)
		}
	}
	for _, m := range cs.Merges {
		if err := uow.Audit().SaveMerge(ctx, m); err != nil {
			return res, fmt.Errorf("saving merge %s: %w", m.ID, err)
		}
		res.PersistedEvents++
	}
	for _, item := range cs.Reviews {
		if err := uow.Audit().SaveReview(ctx, item); err != nil {
			return res, fmt.Errorf("saving review item for claim %s: %w", item.ClaimID, err)
		}
		res.PersistedEvents++
	}
	return res, nil
}
