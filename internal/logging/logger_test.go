package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quire/internal/config"
	"quire/internal/logging"
	"quire/internal/services"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "quire.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "info",
		Console: io.Discard,
		Files:   []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerRendersComponentAndCallRef(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: io.Discard, Files: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithCallRef(context.Background(), "3f2a9c1e-0000-4000-8000-000000000000")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "convert")).Info("conversion finished", logging.Int("bytes", 12))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "convert [3f2a9c1e]: conversion finished") {
		t.Fatalf("unexpected console header: %q", line)
	}
	if !strings.Contains(line, "bytes=12") {
		t.Fatalf("expected attribute in line: %q", line)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Console: io.Discard, Files: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if record["msg"] != "json message" || record["level"] != "info" || record["k"] != "v" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key: %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSetVerboseFlipsSharedLevel(t *testing.T) {
	levels := new(slog.LevelVar)
	logPath := filepath.Join(t.TempDir(), "levels.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: io.Discard, Files: []string{logPath}, Levels: levels})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("hidden")
	logging.SetVerbose(levels, true)
	logger.Debug("visible")
	logging.SetVerbose(levels, false)
	logger.Debug("hidden again")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug lines leaked at info level: %q", text)
	}
	if !strings.Contains(text, "visible") {
		t.Fatalf("expected debug line after SetVerbose(true): %q", text)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := logging.ParseLevel("invalid"); got != slog.LevelInfo {
		t.Fatalf("expected info, got %v", got)
	}
	if got := logging.ParseLevel(" DEBUG "); got != slog.LevelDebug {
		t.Fatalf("expected debug, got %v", got)
	}
}

func TestPruneOldLogsKeepsRecentAndExcluded(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := filepath.Join(dir, "quire-old.log")
	current := filepath.Join(dir, "quire-current.log")
	recent := filepath.Join(dir, "quire-recent.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, current, recent, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := now.Add(-72 * time.Hour)
	for _, path := range []string{old, current, other} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.PruneOldLogs(logging.NewNop(), 24*time.Hour, now, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "quire-*.log",
		Keep:    []string{current},
	})
	if len(removed) != 1 || filepath.Base(removed[0]) != "quire-old.log" {
		t.Fatalf("unexpected removals: %v", removed)
	}
	for _, path := range []string{current, recent, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}

func TestWarnWithContextFillsMissingFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "unknown format tag", "unknown_format",
		logging.String(logging.FieldImpact, "document is processed as ODF text"),
	)

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if record[logging.FieldEventType] != "unknown_format" {
		t.Fatalf("expected event_type, got %v", record)
	}
	if hint, _ := record[logging.FieldErrorHint].(string); hint == "" {
		t.Fatalf("expected a default error_hint, got %v", record)
	}
	if record[logging.FieldImpact] != "document is processed as ODF text" {
		t.Fatalf("caller impact must win over the default, got %v", record[logging.FieldImpact])
	}
}

func TestErrorWithContextKeepsCallerEventType(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.ErrorWithContext(logger, "backend did not answer in time", "conversion_timeout",
		logging.String(logging.FieldEventType, "restart_failed"),
	)

	if n := strings.Count(buf.String(), `"`+logging.FieldEventType+`"`); n != 1 {
		t.Fatalf("expected one event_type key, found %d in %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"restart_failed"`) {
		t.Fatalf("caller event_type lost: %s", buf.String())
	}
}

func TestNilLoggerHelpersAreSafe(t *testing.T) {
	logging.WarnWithContext(nil, "ignored", "noop")
	logging.ErrorWithContext(nil, "ignored", "noop")
	logging.NewComponentLogger(nil, "spool").Info("discarded")
}
