package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"quire/internal/api"
	"quire/internal/config"
	"quire/internal/logging"
)

// maxRequestBytes caps one request body; base64 inflates documents by a third.
const maxRequestBytes = 512 << 20

var acceptedContentTypes = map[string]struct{}{
	"":                        {},
	"application/json":        {},
	"application/json-rpc":    {},
	"application/jsonrequest": {},
}

type apiServer struct {
	bind    string
	logger  *slog.Logger
	methods map[string]methodFunc

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		logger:  logging.NewComponentLogger(logger, "api-server"),
		methods: d.methods(),
	}

	mux := http.NewServeMux()
	handler := authMiddleware(cfg.API.Token, http.HandlerFunc(srv.handleRPC))
	mux.Handle("/", handler)
	mux.Handle("/jsonrpc", handler)

	// Writes must outlast the slowest conversion plus a restart grace period.
	writeTimeout := cfg.ConversionTimeout() + cfg.RestartGrace() + 30*time.Second
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	return nil
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("api server not listening")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	select {
	case <-ctx.Done():
		s.stop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	}
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
		_ = s.server.Close()
	}
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		s.writeJSON(w, http.StatusMethodNotAllowed, api.Failure(nil, api.NewError(api.CodeInvalidRequest, "method not allowed")))
	}
}

func (s *apiServer) handlePost(w http.ResponseWriter, r *http.Request) {
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			parsed = ct
		}
		mediaType = strings.ToLower(parsed)
	}
	if _, ok := acceptedContentTypes[mediaType]; !ok {
		s.writeJSON(w, http.StatusUnsupportedMediaType,
			api.Failure(nil, api.NewError(api.CodeInvalidRequest, "unsupported content type "+mediaType)))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge,
				api.Failure(nil, api.NewError(api.CodeInvalidRequest, "request body too large")))
			return
		}
		s.writeJSON(w, http.StatusBadRequest, api.Failure(nil, api.NewError(api.CodeParseError, "parse error")))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.handleBatch(w, r, body)
		return
	}

	var req api.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, http.StatusOK, api.Failure(nil, api.NewError(api.CodeParseError, "parse error")))
		return
	}
	resp := s.dispatch(r.Context(), req, r.RemoteAddr)
	if req.IsNotification() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleBatch runs batch members in order; notifications produce no entry.
func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var members []json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil {
		s.writeJSON(w, http.StatusOK, api.Failure(nil, api.NewError(api.CodeParseError, "parse error")))
		return
	}
	if len(members) == 0 {
		s.writeJSON(w, http.StatusOK, api.Failure(nil, api.NewError(api.CodeInvalidRequest, "empty batch")))
		return
	}

	responses := make([]api.Response, 0, len(members))
	for _, raw := range members {
		var req api.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, api.Failure(nil, api.NewError(api.CodeInvalidRequest, "invalid request")))
			continue
		}
		resp := s.dispatch(r.Context(), req, r.RemoteAddr)
		if !req.IsNotification() {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, responses)
}

// handleGet serves /?method=...&params=<json>&id=... requests.
func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := api.Request{
		JSONRPC: api.Version,
		Method:  strings.TrimSpace(query.Get("method")),
		ID:      queryID(query.Get("id")),
	}
	if params := strings.TrimSpace(query.Get("params")); params != "" {
		if !json.Valid([]byte(params)) {
			s.writeJSON(w, http.StatusOK, api.Failure(req.ID, api.NewError(api.CodeParseError, "parse error")))
			return
		}
		req.Params = json.RawMessage(params)
	}

	resp := s.dispatch(r.Context(), req, r.RemoteAddr)
	status := http.StatusOK
	if resp.Error != nil && resp.Error.Code == api.CodeInternal {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, resp)
}

// queryID keeps numeric ids numeric and quotes everything else.
func queryID(value string) json.RawMessage {
	value = strings.TrimSpace(value)
	if value == "" {
		return json.RawMessage("null")
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return json.RawMessage(value)
	}
	quoted, _ := json.Marshal(value)
	return quoted
}

func (s *apiServer) dispatch(ctx context.Context, req api.Request, remote string) api.Response {
	if req.JSONRPC != api.Version || req.Method == "" {
		return api.Failure(req.ID, api.NewError(api.CodeInvalidRequest, "invalid request"))
	}
	method, ok := s.methods[req.Method]
	if !ok {
		return api.Failure(req.ID, api.NewError(api.CodeMethodNotFound, "method not found: "+req.Method))
	}

	result, err := method(ctx, rpcCall{method: req.Method, params: req.Params, remote: remote})
	if err != nil {
		rpcErr := api.FromError(err)
		if rpcErr.Code == api.CodeInternal {
			logging.ErrorWithContext(s.logger, "rpc call failed", "rpc_internal_error",
				logging.String(logging.FieldMethod, req.Method),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "see the preceding log lines for this call"),
			)
		}
		return api.Failure(req.ID, rpcErr)
	}
	resp, err := api.Result(req.ID, result)
	if err != nil {
		s.logger.Error("failed to encode result", logging.String(logging.FieldMethod, req.Method), logging.Error(err))
		return api.Failure(req.ID, api.NewError(api.CodeInternal, "internal error"))
	}
	return resp
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
