// Package backup takes and prunes point-in-time snapshots of the catalog.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const stampLayout = "20060102-150405"

// snapshotPattern matches snapshot filenames: catalog-YYYYMMDD-HHMMSS.db
var snapshotPattern = regexp.MustCompile(`^catalog-\d{8}-\d{6}\.db$`)

// Snapshot describes one snapshot file.
type Snapshot struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service writes snapshots of the catalog into a directory and keeps at
// most retention of them.
type Service struct {
	db        *sqlx.DB
	dir       string
	retention int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a snapshot service. A retention below one keeps every
// snapshot.
func NewService(db *sqlx.DB, dir string, retention int, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		dir:       dir,
		retention: retention,
		logger:    logger.With(slog.String("component", "backup")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Take writes a consistent copy of the catalog using VACUUM INTO. It is
// safe to call while batches are being reconciled.
func (s *Service) Take(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	now := s.now()
	filename := "catalog-" + now.Format(stampLayout) + ".db"
	dest := filepath.Join(s.dir, filename)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("snapshot %s already exists", filename)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO %s: %w", dest, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	s.logger.Info("snapshot written", "filename", filename, "size", info.Size())
	return &Snapshot{Filename: filename, Size: info.Size(), CreatedAt: now}, nil
}

// List returns the snapshots in the directory, newest first. A missing
// directory has no snapshots.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var out []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !snapshotPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "catalog-"), ".db")
		ts, err := time.Parse(stampLayout, stamp)
		if err != nil {
			ts = info.ModTime().UTC()
		}
		out = append(out, Snapshot{Filename: entry.Name(), Size: info.Size(), CreatedAt: ts})
	}

	slices.SortFunc(out, func(a, b Snapshot) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// Prune deletes the oldest snapshots beyond the retention count and
// returns how many were removed.
func (s *Service) Prune() (int, error) {
	if s.retention < 1 {
		return 0, nil
	}
	snaps, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(snaps) <= s.retention {
		return 0, nil
	}

	removed := 0
	for _, snap := range snaps[s.retention:] {
		if err := os.Remove(filepath.Join(s.dir, snap.Filename)); err != nil {
			s.logger.Warn("removing old snapshot", "filename", snap.Filename, "error", err)
			continue
		}
		removed++
	}
	s.logger.Info("pruned snapshots", "removed", removed, "retention", s.retention)
	return removed, nil
}

// Schedule takes and prunes a snapshot every interval until ctx is
// canceled.
func (s *Service) Schedule(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Take(ctx); err != nil {
				s.logger.Error("scheduled snapshot failed", "error", err)
				continue
			}
			if _, err := s.Prune(); err != nil {
				s.logger.Error("pruning snapshots", "error", err)
			}
		}
	}
}
