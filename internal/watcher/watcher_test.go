package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/confluence/internal/filesystem"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type processed struct {
	mu    sync.Mutex
	files []string
	fail  map[string]error
}

func (p *processed) process(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append(p.files, filepath.Base(path))
	return p.fail[filepath.Base(path)]
}

func (p *processed) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

func testDirs(t *testing.T) Dirs {
	t.Helper()
	root := t.TempDir()
	return Dirs{
		Inbox:     filepath.Join(root, "inbox"),
		Processed: filepath.Join(root, "processed"),
		Failed:    filepath.Join(root, "failed"),
	}
}

// startService runs svc until the test ends.
func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func newService(dirs Dirs, p *processed) *Service {
	svc := NewService(dirs, p.process, testLogger())
	svc.SetDebounce(50 * time.Millisecond)
	svc.SetPollInterval(100 * time.Millisecond)
	svc.probeTimeout = 500 * time.Millisecond
	return svc
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond, "waiting for %s", path)
}

func TestDroppedFileIsProcessedAndMoved(t *testing.T) {
	dirs := testDirs(t)
	p := &processed{}
	startService(t, newService(dirs, p))

	require.Eventually(t, func() bool {
		_, err := os.Stat(dirs.Inbox)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, filesystem.WriteFileAtomic(filepath.Join(dirs.Inbox, "plays.json"), []byte(`{}`), 0o644))

	waitForFile(t, filepath.Join(dirs.Processed, "plays.json"))
	assert.Equal(t, []string{"plays.json"}, p.seen())
	assert.NoFileExists(t, filepath.Join(dirs.Inbox, "plays.json"))
}

func TestFailedFileGetsErrorReport(t *testing.T) {
	dirs := testDirs(t)
	require.NoError(t, os.MkdirAll(dirs.Inbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Inbox, "broken.json"), []byte(`{`), 0o644))

	p := &processed{fail: map[string]error{"broken.json": errors.New("decoding batch: unexpected end")}}
	startService(t, newService(dirs, p))

	report := filepath.Join(dirs.Failed, "broken.error.txt")
	waitForFile(t, report)
	assert.FileExists(t, filepath.Join(dirs.Failed, "broken.json"))
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Equal(t, "decoding batch: unexpected end\n", string(data))
}

func TestExistingFilesAreProcessedInNameOrder(t *testing.T) {
	dirs := testDirs(t)
	require.NoError(t, os.MkdirAll(dirs.Inbox, 0o755))
	for _, name := range []string{"b.json", "a.json", "notes.txt", ".hidden.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dirs.Inbox, name), []byte(`{}`), 0o644))
	}

	p := &processed{}
	startService(t, newService(dirs, p))

	waitForFile(t, filepath.Join(dirs.Processed, "b.json"))
	assert.Equal(t, []string{"a.json", "b.json"}, p.seen())
	assert.FileExists(t, filepath.Join(dirs.Inbox, "notes.txt"))
	assert.FileExists(t, filepath.Join(dirs.Inbox, ".hidden.json"))
}

func TestPollOnlyPicksUpNewFiles(t *testing.T) {
	dirs := testDirs(t)
	p := &processed{}
	svc := newService(dirs, p)
	svc.SetPollOnly(true)
	svc.SetPollInterval(20 * time.Millisecond)
	startService(t, svc)

	require.Eventually(t, func() bool {
		_, err := os.Stat(dirs.Failed)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Inbox, "late.json"), []byte(`{}`), 0o644))

	waitForFile(t, filepath.Join(dirs.Processed, "late.json"))
	assert.Equal(t, []string{"late.json"}, p.seen())
}

func TestWatchFileCallsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confluence.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, 20*time.Millisecond, func() { calls.Add(1) }, testLogger())
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, filesystem.WriteFileAtomic(path, []byte("logging:\n  level: debug\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
