package reconcile

import (
	"context"

	"github.com/sydlexius/confluence/internal/catalog"
)

// EntityRepository reads and writes canonical entities of every type.
// Lookups that find nothing return nil, nil.
type EntityRepository interface {
	Add(ctx context.Context, e catalog.Entity) error
	Update(ctx context.Context, e catalog.Entity) error
	Get(ctx context.Context, t catalog.EntityType, id string) (catalog.Entity, error)
	GetByExternalID(ctx context.Context, ns catalog.Namespace, value string) (catalog.Entity, error)
}

// SidecarRepository stores the normalization keys of canonical entities so
// name-level keys can be matched exactly.
type SidecarRepository interface {
	Save(ctx context.Context, e catalog.Entity, keys []Key) error
	// FindByKeys returns the entity owning each key that is known, keyed by
	// the key's canonical encoding.
	FindByKeys(ctx context.Context, t catalog.EntityType, keys []Key) (map[string]catalog.Entity, error)
}

// AuditRepository records merge decisions and claims left for an operator.
type AuditRepository interface {
	SaveMerge(ctx context.Context, m catalog.EntityMerge) error
	SaveReview(ctx context.Context, item ReviewItem) error
}

// Repositories exposes the read/write ports of one unit of work.
type Repositories interface {
	Entities() EntityRepository
	Sidecar() SidecarRepository
}

// UnitOfWork scopes the repositories to one transaction.
type UnitOfWork interface {
	Repositories
	Audit() AuditRepository
	Commit() error
	Rollback() error
}

// UnitOfWorkFactory opens units of work.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
