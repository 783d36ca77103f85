// Package store implements the reconciliation ports on SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sydlexius/confluence/internal/reconcile"
)

// Store opens units of work against the catalog database and serves the
// read side used by the CLI.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New creates a store on an opened, migrated database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Begin starts a transaction scoped unit of work.
func (s *Store) Begin(ctx context.Context) (reconcile.UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &UnitOfWork{tx: tx, now: s.now}, nil
}

// UnitOfWork exposes the catalog repositories inside one transaction.
type UnitOfWork struct {
	tx  *sqlx.Tx
	now func() time.Time
}

// Entities implements reconcile.Repositories.
func (u *UnitOfWork) Entities() reconcile.EntityRepository {
	return &entityRepo{tx: u.tx, now: u.now}
}

// Sidecar implements reconcile.Repositories.
func (u *UnitOfWork) Sidecar() reconcile.SidecarRepository {
	return &sidecarRepo{tx: u.tx}
}

// Audit implements reconcile.UnitOfWork.
func (u *UnitOfWork) Audit() reconcile.AuditRepository {
	return &auditRepo{tx: u.tx}
}

// Commit implements reconcile.UnitOfWork.
func (u *UnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback implements reconcile.UnitOfWork. Rolling back a finished
// transaction is a no-op.
func (u *UnitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
