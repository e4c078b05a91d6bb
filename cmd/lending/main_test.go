package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud", ""); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lending.log")
	logger, err := newLogger("info", path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("pool created")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"pool created"`) || !strings.Contains(out, `"ts":`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry written at info level: %s", out)
	}
}
