package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"quire/internal/api"
	"quire/internal/config"
	"quire/internal/convert"
	"quire/internal/preflight"
	"quire/internal/spool"
	"quire/internal/testsupport"
)

type stubConverter struct {
	mu       sync.Mutex
	requests []convert.Request
	joins    []convert.JoinRequest
	out      []byte
	err      error
	busy     bool
}

func (s *stubConverter) Convert(_ context.Context, req convert.Request) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.out, s.err
}

func (s *stubConverter) Join(_ context.Context, req convert.JoinRequest) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, req)
	return s.out, s.err
}

func (s *stubConverter) SelfTest(context.Context) (convert.SelfTestResult, error) {
	if s.err != nil {
		return convert.SelfTestResult{}, s.err
	}
	return convert.SelfTestResult{Status: "ok", Digest: "JVBERi0", Pages: 1}, nil
}

func (s *stubConverter) Busy() bool { return s.busy }

type harness struct {
	cfg       *config.Config
	daemon    *Daemon
	converter *stubConverter
	spool     *spool.Store
	levels    *slog.LevelVar
	server    *httptest.Server
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store, err := spool.New(cfg.Paths.SpoolDir)
	if err != nil {
		t.Fatalf("spool.New: %v", err)
	}
	conv := &stubConverter{out: []byte("%PDF-1.7 converted")}
	levels := new(slog.LevelVar)
	d, err := New(cfg, Dependencies{
		Spool:     store,
		Converter: conv,
		Journal:   testsupport.MustOpenJournal(t, cfg),
		Levels:    levels,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	d.checks = func(context.Context, *config.Config) []preflight.Result {
		return []preflight.Result{{Name: preflight.BackendCheckName, Passed: true, Detail: "stubbed"}}
	}
	srv := httptest.NewServer(d.api.server.Handler)
	t.Cleanup(srv.Close)
	return &harness{cfg: cfg, daemon: d, converter: conv, spool: store, levels: levels, server: srv}
}

// call posts a single JSON-RPC request and decodes the response envelope.
func (h *harness) call(t *testing.T, method string, params any) api.Response {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		req["params"] = params
	}
	body, _ := json.Marshal(req)
	return h.post(t, "/jsonrpc", string(body), http.StatusOK)
}

func (h *harness) post(t *testing.T, path, body string, wantStatus int) api.Response {
	t.Helper()
	resp, err := http.Post(h.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d, got %d", wantStatus, resp.StatusCode)
	}
	var out api.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func decodeResult(t *testing.T, resp api.Response, dst any) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, dst); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}
