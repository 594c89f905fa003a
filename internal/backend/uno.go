package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"quire/internal/logging"
	"quire/internal/services"
)

const defaultDialTimeout = 5 * time.Second

// UnoOption configures an UnoEngine.
type UnoOption func(*UnoEngine)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) UnoOption {
	return func(e *UnoEngine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithDialer replaces the listener health check (primarily for tests).
func WithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) UnoOption {
	return func(e *UnoEngine) {
		if dial != nil {
			e.dial = dial
		}
	}
}

// UnoEngine drives a unoserver listener through the unoconvert client.
//
// Joins are rendered part by part to PDF and merged, so a session holding
// more than one document only renders into pdf; any other output filter fails
// with ErrConversionFailed. Each part keeps its own page style.
type UnoEngine struct {
	binary string
	exec   Executor
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
	logger *slog.Logger
}

// NewUnoEngine constructs an engine using the given unoconvert binary.
func NewUnoEngine(binary string, logger *slog.Logger, opts ...UnoOption) (*UnoEngine, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("unoconvert binary required")
	}
	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	e := &UnoEngine{
		binary: binary,
		exec:   commandExecutor{},
		dial:   dialer.DialContext,
		logger: logging.NewComponentLogger(logger, "uno"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Probe checks that the listener accepts TCP connections.
func (e *UnoEngine) Probe(ctx context.Context, host string, port int) error {
	conn, err := e.dial(ctx, "tcp", joinHostPort(host, port))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Connect health-checks the listener and opens a session bound to it.
func (e *UnoEngine) Connect(ctx context.Context, host string, port int) (Session, error) {
	if err := e.Probe(ctx, host, port); err != nil {
		return nil, fmt.Errorf("dial unoserver: %w", err)
	}
	return &unoSession{engine: e, host: host, port: port}, nil
}

type unoDocument struct {
	data   []byte
	filter Filter
}

type unoSession struct {
	engine *UnoEngine
	host   string
	port   int
	docs   []unoDocument
	closed bool
}

func (s *unoSession) Load(_ context.Context, data []byte, filter Filter, _ bool) error {
	if s.closed {
		return errors.New("session closed")
	}
	if len(s.docs) > 0 {
		return errors.New("document already loaded")
	}
	s.docs = append(s.docs, unoDocument{data: data, filter: filter})
	return nil
}

func (s *unoSession) Append(_ context.Context, data []byte, filter Filter) error {
	if s.closed {
		return errors.New("session closed")
	}
	if len(s.docs) == 0 {
		return errors.New("append before load")
	}
	s.docs = append(s.docs, unoDocument{data: data, filter: filter})
	return nil
}

// Render converts a single document to filter. With appended documents it
// only accepts the pdf filter.
func (s *unoSession) Render(ctx context.Context, filter Filter) ([]byte, error) {
	if s.closed {
		return nil, errors.New("session closed")
	}
	switch len(s.docs) {
	case 0:
		return nil, errors.New("render before load")
	case 1:
		return s.convert(ctx, s.docs[0], filter)
	}

	if filter.Name != PDF.Name {
		return nil, services.Wrap(services.ErrConversionFailed, "uno", "render",
			fmt.Sprintf("joining into %s is not supported; use pdf", filter.Tag), nil)
	}
	parts := make([][]byte, 0, len(s.docs))
	for i, doc := range s.docs {
		out, err := s.convert(ctx, doc, PDF)
		if err != nil {
			return nil, fmt.Errorf("render part %d: %w", i+1, err)
		}
		parts = append(parts, out)
	}
	merged, err := MergePDF(parts)
	if err != nil {
		return nil, fmt.Errorf("merge pdf parts: %w", err)
	}
	return merged, nil
}

func (s *unoSession) Close() error {
	s.closed = true
	s.docs = nil
	return nil
}

func (s *unoSession) convert(ctx context.Context, doc unoDocument, out Filter) ([]byte, error) {
	args := []string{
		"--convert-to", out.Extension,
		"--input-filter", doc.filter.Name,
		"--output-filter", out.Name,
	}
	if out.Options != "" {
		args = append(args, "--filter-options", "FilterOptions="+out.Options)
	}
	args = append(args,
		"--host", s.host,
		"--port", strconv.Itoa(s.port),
		"-", "-",
	)

	var stdout bytes.Buffer
	if err := s.engine.exec.Run(ctx, s.engine.binary, args, bytes.NewReader(doc.data), &stdout); err != nil {
		return nil, fmt.Errorf("unoconvert: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, errors.New("unoconvert produced no output")
	}
	s.engine.logger.Debug("unoconvert finished",
		logging.String("input_filter", doc.filter.Name),
		logging.String("output_filter", out.Name),
		logging.Int("bytes_in", len(doc.data)),
		logging.Int("bytes_out", stdout.Len()),
	)
	return stdout.Bytes(), nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
