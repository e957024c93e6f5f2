package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["key"] != "value" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_DebugFileGetsEverything(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{
		Level:     "error",
		Writer:    &buf,
		DebugFile: DefaultDebugFile,
		WorkDir:   dir,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.With("run_id", "r1").Debug("step", "depth", 2)
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("stderr got debug output: %q", buf.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, DefaultDebugFile))
	if err != nil {
		t.Fatalf("read debug file: %v", err)
	}
	if !strings.Contains(string(data), "msg=step") || !strings.Contains(string(data), "run_id=r1") {
		t.Errorf("debug file = %q", data)
	}
}
