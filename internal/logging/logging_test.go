package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eventcert/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	logger, closer, err := New(config.LogConfig{
		Level:        "debug",
		Format:       "json",
		File:         path,
		RotationTime: time.Hour,
		MaxAge:       24 * time.Hour,
	}, "api")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", slog.String("k", "v"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one rotated file, got %v (%v)", matches, err)
	}
	b, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"service":"api"`) || !strings.Contains(string(b), `"msg":"hello"`) {
		t.Fatalf("unexpected log content %s", b)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("debug level should be enabled")
	}
}
