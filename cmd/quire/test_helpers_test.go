package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"quire/internal/backend"
	"quire/internal/config"
	"quire/internal/convert"
	"quire/internal/daemon"
	"quire/internal/logging"
	"quire/internal/spool"
	"quire/internal/testsupport"
)

// fakeEngine renders "%PDF-fake|" followed by each loaded document, or the
// fixed document when one is set.
type fakeEngine struct {
	mu     sync.Mutex
	loaded [][]byte
	fixed  []byte
}

func (e *fakeEngine) Connect(context.Context, string, int) (backend.Session, error) {
	return &fakeSession{engine: e}, nil
}

type fakeSession struct {
	engine *fakeEngine
	docs   [][]byte
}

func (s *fakeSession) Load(_ context.Context, data []byte, _ backend.Filter, _ bool) error {
	s.docs = append(s.docs, data)
	return nil
}

func (s *fakeSession) Append(_ context.Context, data []byte, _ backend.Filter) error {
	s.docs = append(s.docs, data)
	return nil
}

func (s *fakeSession) Render(context.Context, backend.Filter) ([]byte, error) {
	s.engine.mu.Lock()
	s.engine.loaded = append(s.engine.loaded, s.docs...)
	fixed := s.engine.fixed
	s.engine.mu.Unlock()
	if fixed != nil {
		return fixed, nil
	}
	return append([]byte("%PDF-fake|"), bytes.Join(s.docs, []byte("|"))...), nil
}

func (s *fakeSession) Close() error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	engine     *fakeEngine
	configPath string
	addr       string
}

func setupCLITestEnv(t *testing.T, fixed ...byte) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	store, err := spool.New(cfg.Paths.SpoolDir)
	if err != nil {
		t.Fatalf("spool.New: %v", err)
	}
	engine := &fakeEngine{fixed: fixed}
	connector := backend.NewConnector(engine, cfg.Backend.Host, cfg.Backend.Port, 1, 0, logger)
	orchestrator := convert.New(store, connector, nil, logger, convert.Options{
		Timeout:  cfg.ConversionTimeout(),
		MaxParts: cfg.Backend.MaxDocumentParts,
	})

	d, err := daemon.New(cfg, daemon.Dependencies{
		Spool:     store,
		Converter: orchestrator,
		Journal:   testsupport.MustOpenJournal(t, cfg),
		Levels:    new(slog.LevelVar),
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = d.Close()
	})

	return &cliTestEnv{cfg: cfg, daemon: d, engine: engine, configPath: configPath, addr: d.Addr()}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--api", e.addr}, args...), e.configPath)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nspool_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[backend]\nconnect_backoff_seconds = 0\nrestart_grace_seconds = 0\n",
		cfg.Paths.SpoolDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
