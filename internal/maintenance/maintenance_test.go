package maintenance

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sydlexius/confluence/internal/database"
)

func setupCatalog(t *testing.T) (*sqlx.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	db, err := database.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("opening catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	if _, err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db, dbPath
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStatus(t *testing.T) {
	db, dbPath := setupCatalog(t)
	svc := NewService(db, dbPath, testLogger())

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.DBFileSize <= 0 {
		t.Error("expected positive DB file size")
	}
	if st.PageSize <= 0 {
		t.Error("expected positive page size")
	}
	if st.PageCount <= 0 {
		t.Error("expected positive page count")
	}
}

func TestOptimizeTruncatesWAL(t *testing.T) {
	db, dbPath := setupCatalog(t)
	svc := NewService(db, dbPath, testLogger())

	if err := svc.Optimize(context.Background()); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.WALFileSize != 0 {
		t.Errorf("expected empty WAL after checkpoint, got %d bytes", st.WALFileSize)
	}
}

func TestVacuum(t *testing.T) {
	db, dbPath := setupCatalog(t)
	svc := NewService(db, dbPath, testLogger())

	if err := svc.Vacuum(context.Background()); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.FreelistCount != 0 {
		t.Errorf("expected no free pages after vacuum, got %d", st.FreelistCount)
	}
}

func TestScheduleStopsOnCancel(t *testing.T) {
	db, dbPath := setupCatalog(t)
	svc := NewService(db, dbPath, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Schedule(ctx, time.Hour); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
}
