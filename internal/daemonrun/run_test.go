package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"quire/internal/logging"
	"quire/internal/testsupport"
)

func TestRunWritesPIDAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Logging.Format = "json"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Options{}) }()

	pidPath := cfg.PIDPath()
	deadline := time.Now().Add(10 * time.Second)
	for {
		data, err := os.ReadFile(pidPath)
		if err == nil {
			if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
				t.Fatalf("unexpected pid file contents %q", data)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pid file never appeared")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}
	if _, err := os.Stat(cfg.JournalPath()); err != nil {
		t.Fatalf("expected journal database: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestPruneLogsKeepsCurrentLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.RetentionDays = 7
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := 30 * 24 * time.Hour
	current := filepath.Join(cfg.Paths.LogDir, "quire.log")
	rotated := filepath.Join(cfg.Paths.LogDir, "quire.log.1")
	fresh := filepath.Join(cfg.Paths.LogDir, "quire.log.2")
	testsupport.WriteAged(t, current, []byte("current"), old)
	testsupport.WriteAged(t, rotated, []byte("rotated"), old)
	testsupport.WriteAged(t, fresh, []byte("fresh"), time.Hour)

	removed := pruneLogs(logging.NewNop(), cfg, time.Now())
	if len(removed) != 1 || removed[0] != rotated {
		t.Fatalf("expected only the old rotated log removed, got %v", removed)
	}
	for _, path := range []string{current, fresh} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}

	cfg.Logging.RetentionDays = 0
	if removed := pruneLogs(logging.NewNop(), cfg, time.Now()); removed != nil {
		t.Fatalf("expected pruning disabled, got %v", removed)
	}
}
