package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_DefaultConfig(t *testing.T) {
	var buf bytes.Buffer
	mgr, logger := New(DefaultConfig(), &buf)
	defer mgr.Close() //nolint:errcheck

	logger.Info("batch reconciled", "claims", 3)

	if !strings.Contains(buf.String(), `"msg":"batch reconciled"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
	if mgr.Current().Format != "json" {
		t.Errorf("expected format json, got %s", mgr.Current().Format)
	}
}

func TestManager_LevelChange(t *testing.T) {
	var buf bytes.Buffer
	mgr, logger := New(Config{Level: "info", Format: "json"}, &buf)
	defer mgr.Close() //nolint:errcheck
	ctx := context.Background()

	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("expected debug to be disabled")
	}
	if err := mgr.Apply(Config{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("expected debug to be enabled after apply")
	}
	if err := mgr.Apply(Config{Level: "error", Format: "json"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("expected info to be disabled at error level")
	}
}

func TestManager_DerivedLoggerFollowsFormatChange(t *testing.T) {
	var buf bytes.Buffer
	mgr, logger := New(Config{Level: "info", Format: "json"}, &buf)
	defer mgr.Close() //nolint:errcheck

	component := logger.With("component", "engine").WithGroup("batch")
	if err := mgr.Apply(Config{Level: "info", Format: "text"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	component.Info("persisted", "entities", 2)

	out := buf.String()
	if !strings.Contains(out, "component=engine") {
		t.Errorf("expected text output with component attr, got %q", out)
	}
	if !strings.Contains(out, "batch.entities=2") {
		t.Errorf("expected grouped attr, got %q", out)
	}
}

func TestManager_RejectsUnknownLevel(t *testing.T) {
	mgr, _ := New(DefaultConfig(), &bytes.Buffer{})
	defer mgr.Close() //nolint:errcheck

	if err := mgr.Apply(Config{Level: "trace", Format: "json"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if mgr.Current().Level != "info" {
		t.Errorf("config changed after failed apply: %s", mgr.Current().Level)
	}
}

func TestManager_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "confluence.log")
	mgr, logger := New(Config{
		Level:          "info",
		Format:         "json",
		FilePath:       logFile,
		FileMaxSizeMB:  1,
		FileMaxFiles:   1,
		FileMaxAgeDays: 1,
	}, &bytes.Buffer{})

	logger.Info("hello from test")

	if err := mgr.Close(); err != nil {
		t.Fatalf("closing manager: %v", err)
	}
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !bytes.Contains(data, []byte("hello from test")) {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestManager_RotateWithoutFile(t *testing.T) {
	mgr, _ := New(DefaultConfig(), &bytes.Buffer{})
	if err := mgr.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		out     slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"", slog.LevelInfo, false},
		{"fatal", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.out {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.out)
		}
	}
}

func TestConfig_String(t *testing.T) {
	cfg := Config{Level: "info", Format: "json"}
	if s := cfg.String(); s != "level=info format=json" {
		t.Errorf("unexpected string: %s", s)
	}

	cfg.FilePath = "/var/log/confluence.log"
	cfg.FileMaxSizeMB = 50
	cfg.FileMaxFiles = 5
	cfg.FileMaxAgeDays = 7
	want := "level=info format=json file=/var/log/confluence.log max_size=50MB max_files=5 max_age=7d"
	if s := cfg.String(); s != want {
		t.Errorf("got %q, want %q", s, want)
	}
}
