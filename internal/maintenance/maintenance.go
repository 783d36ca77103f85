// Package maintenance keeps the SQLite catalog file healthy.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
)

// Status describes the catalog file.
type Status struct {
	DBFileSize    int64 `json:"db_file_size"`
	WALFileSize   int64 `json:"wal_file_size"`
	PageCount     int64 `json:"page_count"`
	PageSize      int64 `json:"page_size"`
	FreelistCount int64 `json:"freelist_count"`
}

// Service runs maintenance pragmas against the catalog.
type Service struct {
	db     *sqlx.DB
	dbPath string
	logger *slog.Logger
}

// NewService creates a maintenance service for the catalog at dbPath.
func NewService(db *sqlx.DB, dbPath string, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dbPath: dbPath,
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// Status reports file and page statistics. Missing files report zero.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	for pragma, dst := range map[string]*int64{
		"page_count":     &st.PageCount,
		"page_size":      &st.PageSize,
		"freelist_count": &st.FreelistCount,
	} {
		if err := s.db.GetContext(ctx, dst, "PRAGMA "+pragma); err != nil {
			return nil, fmt.Errorf("reading %s: %w", pragma, err)
		}
	}
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a truncating WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	s.logger.Info("optimize complete")
	return nil
}

// Vacuum rebuilds the catalog file, reclaiming free pages.
func (s *Service) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// Schedule runs Optimize every interval until ctx is canceled.
func (s *Service) Schedule(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Optimize(ctx); err != nil {
				s.logger.Error("scheduled optimize failed", "error", err)
			}
		}
	}
}
