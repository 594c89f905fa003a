package convert_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quire/internal/backend"
	"quire/internal/convert"
	"quire/internal/deadline"
	"quire/internal/logging"
	"quire/internal/services"
	"quire/internal/spool"
	"quire/internal/testsupport"
)

type call struct {
	op     string
	data   string
	filter string
}

type fakeSession struct {
	mu       sync.Mutex
	calls    []call
	closed   bool
	render   func(ctx context.Context) ([]byte, error)
	loadErr  error
	renderFn func(calls []call) []byte
}

func (s *fakeSession) Load(_ context.Context, data []byte, filter backend.Filter, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{"load", string(data), filter.Name})
	return s.loadErr
}

func (s *fakeSession) Append(_ context.Context, data []byte, filter backend.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{"append", string(data), filter.Name})
	return nil
}

func (s *fakeSession) Render(ctx context.Context, filter backend.Filter) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{"render", "", filter.Name})
	snapshot := append([]call(nil), s.calls...)
	s.mu.Unlock()
	if s.render != nil {
		return s.render(ctx)
	}
	if s.renderFn != nil {
		return s.renderFn(snapshot), nil
	}
	return []byte("rendered"), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeConnector struct {
	mu       sync.Mutex
	acquired int
	err      error
	newFn    func() *fakeSession
	sessions []*fakeSession
}

func (c *fakeConnector) Acquire(context.Context) (backend.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired++
	if c.err != nil {
		return nil, c.err
	}
	s := &fakeSession{}
	if c.newFn != nil {
		s = c.newFn()
	}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

func (c *fakeConnector) last() *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[len(c.sessions)-1]
}

type fakeRestarter struct {
	calls  atomic.Int32
	result bool
}

func (r *fakeRestarter) Restart(context.Context) bool {
	r.calls.Add(1)
	return r.result
}

func newOrchestrator(t *testing.T, conn *fakeConnector, restarter *fakeRestarter, timeout time.Duration) (*convert.Orchestrator, *spool.Store) {
	t.Helper()
	store, err := spool.New(filepath.Join(t.TempDir(), "spool"))
	if err != nil {
		t.Fatalf("spool.New: %v", err)
	}
	if restarter == nil {
		restarter = &fakeRestarter{}
	}
	o := convert.New(store, conn, restarter, logging.NewNop(), convert.Options{Timeout: timeout, MaxParts: 2175})
	return o, store
}

func upload(t *testing.T, store *spool.Store, content []byte, chunk int) string {
	t.Helper()
	text := base64.StdEncoding.EncodeToString(content)
	id := ""
	for len(text) > 0 {
		n := min(chunk, len(text))
		var err error
		id, err = store.PutChunk(id, []byte(text[:n]), n == len(text))
		if err != nil {
			t.Fatalf("PutChunk: %v", err)
		}
		text = text[n:]
	}
	return id
}

func TestConvertInlineDocument(t *testing.T) {
	conn := &fakeConnector{}
	o, _ := newOrchestrator(t, conn, nil, time.Second)

	out, err := o.Convert(context.Background(), convert.Request{Data: []byte("hello"), InFormat: "odt", OutFormat: "pdf"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if string(out) != "rendered" {
		t.Fatalf("unexpected output %q", out)
	}
	session := conn.last()
	if !session.isClosed() {
		t.Fatal("session must be closed after success")
	}
	want := []call{{"load", "hello", "writer8"}, {"render", "", "writer_pdf_Export"}}
	if len(session.calls) != 2 || session.calls[0] != want[0] || session.calls[1] != want[1] {
		t.Fatalf("unexpected session calls %+v", session.calls)
	}
	if o.Busy() {
		t.Fatal("slot must be free after the call")
	}
}

func TestConvertValidation(t *testing.T) {
	tests := []struct {
		name string
		req  convert.Request
		want error
	}{
		{"neither", convert.Request{InFormat: "odt"}, services.ErrNoIdentifier},
		{"both", convert.Request{Data: []byte("x"), Identifier: "1"}, services.ErrNoIdentifier},
		{"empty data", convert.Request{Data: []byte{}}, services.ErrNoData},
		{"unknown identifier", convert.Request{Identifier: "404"}, services.ErrNoIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConnector{}
			o, _ := newOrchestrator(t, conn, nil, time.Second)
			if _, err := o.Convert(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if conn.count() != 0 {
				t.Fatalf("backend must not be contacted, got %d acquires", conn.count())
			}
		})
	}
}

func TestConvertFromSpoolDecodesBase64(t *testing.T) {
	conn := &fakeConnector{}
	o, store := newOrchestrator(t, conn, nil, time.Second)
	content := []byte("spooled document content that spans several chunks")
	// Chunk size 7 does not align with base64 quanta.
	id := upload(t, store, content, 7)

	if _, err := o.Convert(context.Background(), convert.Request{Identifier: id, InFormat: "doc", OutFormat: "odt"}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := conn.last().calls[0]
	if got.data != string(content) || got.filter != "MS Word 97" {
		t.Fatalf("unexpected load %+v", got)
	}
}

func TestPartThreshold(t *testing.T) {
	tests := []struct {
		parts   int
		wantErr error
	}{
		{2174, nil},
		{2175, nil},
		{2176, services.ErrResourceLimit},
	}
	for _, tt := range tests {
		conn := &fakeConnector{}
		o, _ := newOrchestrator(t, conn, nil, time.Second)
		doc := testsupport.ZipWithParts(t, tt.parts)

		_, err := o.Convert(context.Background(), convert.Request{Data: doc, InFormat: "odt", OutFormat: "pdf"})
		if tt.wantErr == nil {
			if err != nil {
				t.Fatalf("%d parts: unexpected error %v", tt.parts, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%d parts: expected %v, got %v", tt.parts, tt.wantErr, err)
		}
		if conn.count() != 0 {
			t.Fatalf("%d parts: backend contacted on reject", tt.parts)
		}
	}
}

func TestNonZipInputSkipsPartGuard(t *testing.T) {
	conn := &fakeConnector{}
	o, _ := newOrchestrator(t, conn, nil, time.Second)
	if _, err := o.Convert(context.Background(), convert.Request{Data: []byte("a;b;c\n1;2;3\n"), InFormat: "csv", OutFormat: "ods"}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
}

func TestConvertSerializesBackendAccess(t *testing.T) {
	var active, peak atomic.Int32
	conn := &fakeConnector{newFn: func() *fakeSession {
		return &fakeSession{render: func(context.Context) ([]byte, error) {
			now := active.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return []byte("ok"), nil
		}}
	}}
	o, _ := newOrchestrator(t, conn, nil, 5*time.Second)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Convert(context.Background(), convert.Request{Data: []byte("x"), OutFormat: "pdf"}); err != nil {
				t.Errorf("Convert: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("expected at most one concurrent backend span, saw %d", peak.Load())
	}
	if conn.count() != 8 {
		t.Fatalf("expected a fresh session per call, got %d", conn.count())
	}
}

func blockingConnector(release <-chan struct{}, finished *atomic.Bool) *fakeConnector {
	return &fakeConnector{newFn: func() *fakeSession {
		return &fakeSession{render: func(context.Context) ([]byte, error) {
			<-release
			finished.Store(true)
			return []byte("late"), nil
		}}
	}}
}

func TestTimeoutRestartsOnceAndFailsOpaquely(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var finished atomic.Bool
	conn := blockingConnector(release, &finished)
	restarter := &fakeRestarter{result: true}
	o, _ := newOrchestrator(t, conn, restarter, 30*time.Millisecond)

	_, err := o.Convert(context.Background(), convert.Request{Data: []byte("x"), OutFormat: "pdf"})
	if !errors.Is(err, services.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if errors.Is(err, services.ErrConversionTimeout) || errors.Is(err, deadline.ErrExceeded) {
		t.Fatalf("timeout cause leaked to caller: %v", err)
	}
	if got := restarter.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one restart, got %d", got)
	}
	if o.Busy() {
		t.Fatal("slot must be released after a successful restart")
	}
	if finished.Load() {
		t.Fatal("abandoned backend call should still be running")
	}
}

func TestTimeoutWithoutRestartKeepsSlotUntilCallReturns(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	conn := blockingConnector(release, &finished)
	restarter := &fakeRestarter{result: false}
	o, _ := newOrchestrator(t, conn, restarter, 30*time.Millisecond)

	if _, err := o.Convert(context.Background(), convert.Request{Data: []byte("x"), OutFormat: "pdf"}); !errors.Is(err, services.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if !o.Busy() {
		t.Fatal("slot must stay held by the hung call when restart fails")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := o.Convert(ctx, convert.Request{Data: []byte("y"), OutFormat: "pdf"}); !errors.Is(err, services.ErrBackendUnavailable) {
		t.Fatalf("waiter should give up with ErrBackendUnavailable, got %v", err)
	}

	close(release)
	waitUntil(t, func() bool { return !o.Busy() })
	if !conn.last().isClosed() {
		t.Fatal("abandoned session must still be closed when its call returns")
	}
}

func TestTimedOutWorkerFinishesAfterCallReturns(t *testing.T) {
	for _, restarted := range []bool{true, false} {
		release := make(chan struct{})
		var finished atomic.Bool
		conn := blockingConnector(release, &finished)
		o, _ := newOrchestrator(t, conn, &fakeRestarter{result: restarted}, 20*time.Millisecond)

		if _, err := o.Convert(context.Background(), convert.Request{Data: []byte("x"), OutFormat: "pdf"}); !errors.Is(err, services.ErrConversionFailed) {
			t.Fatalf("restarted=%v: expected ErrConversionFailed, got %v", restarted, err)
		}

		// The abandoned worker walks through its remaining states after the
		// caller has already settled the call as failed.
		close(release)
		waitUntil(t, func() bool { return finished.Load() && conn.last().isClosed() })
		waitUntil(t, func() bool { return !o.Busy() })

		conn.mu.Lock()
		conn.newFn = nil
		conn.mu.Unlock()
		out, err := o.Convert(context.Background(), convert.Request{Data: []byte("y"), OutFormat: "pdf"})
		if err != nil {
			t.Fatalf("restarted=%v: follow-up conversion: %v", restarted, err)
		}
		if string(out) != "rendered" {
			t.Fatalf("restarted=%v: unexpected output %q", restarted, out)
		}
	}
}

func TestRenderFailureClosesSession(t *testing.T) {
	conn := &fakeConnector{newFn: func() *fakeSession {
		return &fakeSession{render: func(context.Context) ([]byte, error) {
			return nil, errors.New("filter rejected document")
		}}
	}}
	o, _ := newOrchestrator(t, conn, nil, time.Second)

	_, err := o.Convert(context.Background(), convert.Request{Data: []byte("x"), OutFormat: "pdf"})
	if !errors.Is(err, services.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if !conn.last().isClosed() {
		t.Fatal("session must be closed on failure")
	}
	if o.Busy() {
		t.Fatal("slot must be released after failure")
	}
}

func TestBackendUnavailablePropagates(t *testing.T) {
	conn := &fakeConnector{err: services.Wrap(services.ErrBackendUnavailable, "backend", "connect", "refused", nil)}
	o, _ := newOrchestrator(t, conn, nil, time.Second)
	_, err := o.Convert(context.Background(), convert.Request{Data: []byte("x"), OutFormat: "pdf"})
	if !errors.Is(err, services.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestPanickingEngineFailsCall(t *testing.T) {
	conn := &fakeConnector{newFn: func() *fakeSession {
		return &fakeSession{render: func(context.Context) ([]byte, error) { panic("uno bridge crashed") }}
	}}
	o, _ := newOrchestrator(t, conn, nil, time.Second)
	_, err := o.Convert(context.Background(), convert.Request{Data: []byte("x"), OutFormat: "pdf"})
	if !errors.Is(err, services.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if o.Busy() {
		t.Fatal("slot must be released after a panic")
	}
}

func TestJoinPreservesOrder(t *testing.T) {
	conn := &fakeConnector{newFn: func() *fakeSession {
		return &fakeSession{renderFn: func(calls []call) []byte {
			var buf bytes.Buffer
			for _, c := range calls {
				buf.WriteString(c.data)
			}
			return buf.Bytes()
		}}
	}}
	o, store := newOrchestrator(t, conn, nil, time.Second)
	a := upload(t, store, []byte("A"), 100)
	b := upload(t, store, []byte("B"), 100)
	c := upload(t, store, []byte("C"), 100)

	out, err := o.Join(context.Background(), convert.JoinRequest{Identifiers: []string{a, b, c}, InFormat: "odt", OutFormat: "pdf"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if string(out) != "ABC" {
		t.Fatalf("expected ABC, got %q", out)
	}
	calls := conn.last().calls
	if calls[0].op != "load" || calls[1].op != "append" || calls[2].op != "append" || calls[3].op != "render" {
		t.Fatalf("unexpected call sequence %+v", calls)
	}
}

func TestJoinDefaultsInputFilter(t *testing.T) {
	conn := &fakeConnector{}
	o, store := newOrchestrator(t, conn, nil, time.Second)
	id := upload(t, store, []byte("A"), 100)
	if _, err := o.Join(context.Background(), convert.JoinRequest{Identifiers: []string{id}, OutFormat: "pdf"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if f := conn.last().calls[0].filter; f != "writer8" {
		t.Fatalf("expected writer8 input filter, got %q", f)
	}
}

func TestJoinValidation(t *testing.T) {
	conn := &fakeConnector{}
	o, _ := newOrchestrator(t, conn, nil, time.Second)
	for _, ids := range [][]string{nil, {""}, {"missing"}} {
		if _, err := o.Join(context.Background(), convert.JoinRequest{Identifiers: ids}); !errors.Is(err, services.ErrNoIdentifier) {
			t.Fatalf("identifiers %v: expected ErrNoIdentifier, got %v", ids, err)
		}
	}
	if conn.count() != 0 {
		t.Fatalf("backend contacted during validation: %d", conn.count())
	}
}

func TestJoinRejectsMissingLaterDocumentBeforeBackend(t *testing.T) {
	conn := &fakeConnector{}
	o, store := newOrchestrator(t, conn, nil, time.Second)
	a := upload(t, store, []byte("A"), 100)

	out, err := o.Join(context.Background(), convert.JoinRequest{Identifiers: []string{a, "gone"}, OutFormat: "pdf"})
	if !errors.Is(err, services.ErrNoIdentifier) {
		t.Fatalf("expected ErrNoIdentifier, got %v", err)
	}
	if out != nil {
		t.Fatalf("no partial output expected, got %q", out)
	}
	if conn.count() != 0 {
		t.Fatalf("backend contacted for an unknown member: %d", conn.count())
	}
}

func TestJoinRejectsOversizedLaterDocumentBeforeBackend(t *testing.T) {
	conn := &fakeConnector{}
	o, store := newOrchestrator(t, conn, nil, time.Second)
	small := upload(t, store, testsupport.ZipWithParts(t, 3), 4096)
	large := upload(t, store, testsupport.ZipWithParts(t, 2176), 1<<20)

	_, err := o.Join(context.Background(), convert.JoinRequest{Identifiers: []string{small, large}, InFormat: "odt", OutFormat: "pdf"})
	if !errors.Is(err, services.ErrResourceLimit) {
		t.Fatalf("expected ErrResourceLimit, got %v", err)
	}
	if conn.count() != 0 {
		t.Fatalf("backend session acquired before the part check: %d", conn.count())
	}
	if o.Busy() {
		t.Fatal("slot must not be taken for a rejected join")
	}
}

func TestJoinAppendFailureClosesSession(t *testing.T) {
	conn := &fakeConnector{newFn: func() *fakeSession {
		return &fakeSession{loadErr: errors.New("base document unreadable")}
	}}
	o, store := newOrchestrator(t, conn, nil, time.Second)
	a := upload(t, store, []byte("A"), 100)
	b := upload(t, store, []byte("B"), 100)

	out, err := o.Join(context.Background(), convert.JoinRequest{Identifiers: []string{a, b}, OutFormat: "pdf"})
	if !errors.Is(err, services.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if out != nil {
		t.Fatalf("no partial output expected, got %q", out)
	}
	session := conn.last()
	if !session.isClosed() {
		t.Fatal("session must be closed after mid-sequence failure")
	}
	for _, c := range session.calls {
		if c.op == "append" || c.op == "render" {
			t.Fatalf("%s must not run after a failed load", c.op)
		}
	}
}

func TestSelfTest(t *testing.T) {
	pdf := testsupport.MinimalPDF(1)
	conn := &fakeConnector{newFn: func() *fakeSession {
		return &fakeSession{render: func(context.Context) ([]byte, error) { return pdf, nil }}
	}}
	o, _ := newOrchestrator(t, conn, nil, time.Second)

	res, err := o.SelfTest(context.Background())
	if err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	if res.Status != "ok" || res.Pages != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Digest) != 128 || res.Digest[:4] != "JVBE" {
		t.Fatalf("unexpected digest %q", res.Digest)
	}
	load := conn.last().calls[0]
	if load.filter != "writer8" || !bytes.HasPrefix([]byte(load.data), []byte("PK")) {
		t.Fatalf("expected an ODF package loaded with writer8, got filter %q", load.filter)
	}
}

func TestSelfTestRejectsNonPDF(t *testing.T) {
	conn := &fakeConnector{}
	o, _ := newOrchestrator(t, conn, nil, time.Second)
	if _, err := o.SelfTest(context.Background()); !errors.Is(err, services.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
