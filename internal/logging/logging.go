// Package logging owns the process logger: level, format and optional
// rotated file output, all changeable while the process runs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the logging section of the configuration file.
type Config struct {
	Level          string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format         string `yaml:"format" json:"format" validate:"oneof=json text"`
	FilePath       string `yaml:"file_path" json:"file_path,omitempty"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb" json:"file_max_size_mb,omitempty" validate:"gte=0"`
	FileMaxFiles   int    `yaml:"file_max_files" json:"file_max_files,omitempty" validate:"gte=0"`
	FileMaxAgeDays int    `yaml:"file_max_age_days" json:"file_max_age_days,omitempty" validate:"gte=0"`
}

// DefaultConfig returns JSON logging at info level with rotation limits
// applied when a file is configured.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		FileMaxSizeMB:  100,
		FileMaxFiles:   3,
		FileMaxAgeDays: 30,
	}
}

func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return s
}

// outputChanged reports whether moving from c to next needs a new handler.
func (c Config) outputChanged(next Config) bool {
	return c.Format != next.Format ||
		c.FilePath != next.FilePath ||
		c.FileMaxSizeMB != next.FileMaxSizeMB ||
		c.FileMaxFiles != next.FileMaxFiles ||
		c.FileMaxAgeDays != next.FileMaxAgeDays
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Manager holds the active handler. Loggers derived from the one returned
// by New, including those made with With before a reconfiguration, follow
// every later change.
type Manager struct {
	mu     sync.Mutex
	level  *slog.LevelVar
	active *atomic.Pointer[slog.Handler]
	out    io.Writer
	file   *lumberjack.Logger
	cfg    Config
}

// New builds a manager writing to out (and to cfg.FilePath when set) and
// the root logger bound to it.
func New(cfg Config, out io.Writer) (*Manager, *slog.Logger) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	m := &Manager{
		level:  &slog.LevelVar{},
		active: &atomic.Pointer[slog.Handler]{},
		out:    out,
		cfg:    cfg,
	}
	m.level.Set(lvl)
	h := m.build(cfg)
	m.active.Store(&h)
	return m, slog.New(&followHandler{active: m.active})
}

// Apply switches to cfg. A level change takes effect at once; format or
// file changes replace the handler and close the previous log file.
func (m *Manager) Apply(cfg Config) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.level.Set(lvl)
	if m.cfg.outputChanged(cfg) {
		old := m.file
		h := m.build(cfg)
		m.active.Store(&h)
		if old != nil {
			_ = old.Close()
		}
	}
	m.cfg = cfg
	return nil
}

// Current returns the configuration in effect.
func (m *Manager) Current() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Rotate starts a new log file. It is a no-op without file output.
func (m *Manager) Rotate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	return m.file.Rotate()
}

// Close releases the log file, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// build makes the handler for cfg and records its file writer. Callers hold
// m.mu or have exclusive access.
func (m *Manager) build(cfg Config) slog.Handler {
	w := m.out
	m.file = nil
	if cfg.FilePath != "" {
		m.file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.FileMaxSizeMB, 100),
			MaxBackups: orDefault(cfg.FileMaxFiles, 3),
			MaxAge:     orDefault(cfg.FileMaxAgeDays, 30),
		}
		w = io.MultiWriter(m.out, m.file)
	}
	opts := &slog.HandlerOptions{Level: m.level}
	if cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// followHandler forwards to the manager's active handler, replaying the
// attributes and groups it was derived with.
type followHandler struct {
	active *atomic.Pointer[slog.Handler]
	derive []func(slog.Handler) slog.Handler
}

func (f *followHandler) current() slog.Handler {
	h := *f.active.Load()
	for _, d := range f.derive {
		h = d(h)
	}
	return h
}

func (f *followHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*f.active.Load()).Enabled(ctx, level)
}

func (f *followHandler) Handle(ctx context.Context, r slog.Record) error {
	return f.current().Handle(ctx, r)
}

func (f *followHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *followHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *followHandler) with(d func(slog.Handler) slog.Handler) *followHandler {
	derive := make([]func(slog.Handler) slog.Handler, len(f.derive), len(f.derive)+1)
	copy(derive, f.derive)
	return &followHandler{active: f.active, derive: append(derive, d)}
}
