// Package watcher watches the inbox for batch files and the config file for
// edits.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/confluence/internal/filesystem"
)

// ProcessFunc handles one batch file. A nil error sends the file to the
// processed directory, any error to the failed directory.
type ProcessFunc func(ctx context.Context, path string) error

// Dirs names the inbox and the directories files are moved to.
type Dirs struct {
	Inbox     string
	Processed string
	Failed    string
}

// Service feeds batch files dropped into the inbox to a ProcessFunc, one
// at a time, once they have been quiet for the debounce interval.
type Service struct {
	dirs         Dirs
	process      ProcessFunc
	logger       *slog.Logger
	debounce     time.Duration
	pollInterval time.Duration
	probeTimeout time.Duration
	pollOnly     bool

	// pending maps a file to the time of its last event. Only the Start
	// goroutine touches it.
	pending map[string]time.Time
}

// NewService creates an inbox watcher.
func NewService(dirs Dirs, process ProcessFunc, logger *slog.Logger) *Service {
	return &Service{
		dirs:         dirs,
		process:      process,
		logger:       logger.With("component", "inbox-watcher"),
		debounce:     2 * time.Second,
		pollInterval: 30 * time.Second,
		probeTimeout: 2 * time.Second,
		pending:      make(map[string]time.Time),
	}
}

// SetDebounce overrides how long a file must be quiet before processing.
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// SetPollInterval overrides how often the inbox is rescanned.
func (s *Service) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// SetPollOnly disables fsnotify and relies on rescans alone.
func (s *Service) SetPollOnly(v bool) {
	s.pollOnly = v
}

// Start blocks until ctx is canceled. Files already in the inbox are
// processed first. When fsnotify does not work on the inbox the service
// falls back to periodic rescans.
func (s *Service) Start(ctx context.Context) error {
	for _, dir := range []string{s.dirs.Inbox, s.dirs.Processed, s.dirs.Failed} {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: shared with the producer
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	if !s.pollOnly && ProbeFSNotify(s.dirs.Inbox, s.probeTimeout) {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating fsnotify watcher: %w", err)
		}
		defer w.Close() //nolint:errcheck
		if err := w.Add(s.dirs.Inbox); err != nil {
			return fmt.Errorf("watching %s: %w", s.dirs.Inbox, err)
		}
		eventCh, errCh = w.Events, w.Errors
	} else {
		s.logger.Warn("fsnotify unavailable for inbox, polling only", "path", s.dirs.Inbox)
	}

	s.logger.Info("inbox watcher starting", "path", s.dirs.Inbox, "debounce", s.debounce)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	arm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.debounce)
	}

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	if s.sweep() {
		arm()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("inbox watcher stopping")
			return nil

		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if filepath.Dir(ev.Name) != filepath.Clean(s.dirs.Inbox) || !isBatchFile(ev.Name) {
				continue
			}
			s.pending[ev.Name] = time.Now()
			arm()

		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-timer.C:
			s.flush(ctx)
			if len(s.pending) > 0 {
				arm()
			}

		case <-pollTicker.C:
			if s.sweep() {
				arm()
			}
		}
	}
}

// sweep queues every batch file in the inbox that is not already pending
// and reports whether anything was added.
func (s *Service) sweep() bool {
	entries, err := os.ReadDir(s.dirs.Inbox)
	if err != nil {
		s.logger.Error("reading inbox", "path", s.dirs.Inbox, "error", err)
		return false
	}
	added := false
	for _, e := range entries {
		path := filepath.Join(s.dirs.Inbox, e.Name())
		if !e.Type().IsRegular() || !isBatchFile(path) {
			continue
		}
		if _, ok := s.pending[path]; ok {
			continue
		}
		s.pending[path] = time.Now()
		added = true
	}
	return added
}

// flush processes, in name order, every pending file that has been quiet
// for the debounce interval.
func (s *Service) flush(ctx context.Context) {
	now := time.Now()
	var ready []string
	for path, last := range s.pending {
		if now.Sub(last) >= s.debounce {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(s.pending, path)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		s.handle(ctx, path)
	}
}

func (s *Service) handle(ctx context.Context, path string) {
	procErr := s.process(ctx, path)
	if procErr == nil {
		dst, err := filesystem.MoveFile(path, s.dirs.Processed)
		if err != nil {
			s.logger.Error("moving processed batch", "file", path, "error", err)
			return
		}
		s.logger.Info("batch processed", "file", path, "moved_to", dst)
		return
	}

	dst, err := filesystem.MoveFile(path, s.dirs.Failed)
	if err != nil {
		s.logger.Error("moving failed batch", "file", path, "error", err)
		return
	}
	report := filesystem.ErrorReportPath(dst)
	if err := filesystem.WriteFileAtomic(report, []byte(procErr.Error()+"\n"), 0o644); err != nil {
		s.logger.Error("writing error report", "file", report, "error", err)
	}
	s.logger.Warn("batch failed", "file", path, "moved_to", dst, "error", procErr)
}

func isBatchFile(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), ".json")
}
