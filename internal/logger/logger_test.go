package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	log, closer := Config{}.NewLogger()
	if log == nil {
		t.Fatal("expected a logger")
	}
	if closer != nil {
		t.Fatal("no file configured, closer should be nil")
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drover.log")
	log, closer := Config{File: path, NoColor: true}.NewLogger()
	if closer == nil {
		t.Fatal("expected a file closer")
	}
	defer func() { _ = closer.Close() }()

	log.Info("cycle complete", slog.Int("accounts", 3))

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "cycle complete") {
		t.Fatalf("log file missing message, got: %s", b)
	}
}

func TestFileHandlerHonorsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drover.log")
	log, closer := Config{File: path, Level: "warn"}.NewLogger()
	defer func() { _ = closer.Close() }()

	log.Info("quiet")
	log.Warn("loud")

	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "quiet") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(string(b), "loud") {
		t.Error("warn record should be written")
	}
}
