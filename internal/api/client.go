package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

// ErrAPIUnavailable is returned when no API bind is configured.
var ErrAPIUnavailable = errors.New("quire API unavailable")

// Client calls the daemon's JSON-RPC endpoint over HTTP.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	nextID   atomic.Int64
}

// NewClient builds a client for the given bind address or URL. Conversions can
// run for minutes, so the http.Client carries no timeout; callers bound calls
// with their context.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = "/jsonrpc"
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		endpoint: base.String(),
		token:    strings.TrimSpace(token),
		http:     &http.Client{},
	}, nil
}

// Endpoint returns the URL calls are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call invokes method with params and decodes the result into out. RPC-level
// failures are returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	id := c.nextID.Add(1)
	req := Request{JSONRPC: Version, Method: method, ID: json.RawMessage(fmt.Sprint(id))}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.New("quire API rejected the token (401 unauthorized)")
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var rpcResp Response
	if err := json.Unmarshal(payload, &rpcResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// UploadChunkAlign is the byte multiple every non-final chunk must respect so
// the concatenated base64 text stays decodable.
const UploadChunkAlign = 3

// Upload sends one chunk and returns the spool identifier.
func (c *Client) Upload(ctx context.Context, identifier string, chunk []byte, isLast bool) (string, error) {
	if !isLast && len(chunk)%UploadChunkAlign != 0 {
		return "", fmt.Errorf("chunk of %d bytes is not a multiple of %d", len(chunk), UploadChunkAlign)
	}
	var res UploadResult
	params := UploadParams{
		Data:       base64.StdEncoding.EncodeToString(chunk),
		IsLast:     isLast,
		Identifier: Identifier(identifier),
	}
	if err := c.Call(ctx, "upload", params, &res); err != nil {
		return "", err
	}
	return res.Identifier, nil
}

// Convert converts inline data, or a spooled document when data is nil.
func (c *Client) Convert(ctx context.Context, data []byte, identifier, inFormat, outFormat, clientID string) ([]byte, error) {
	params := ConvertParams{
		Identifier: Identifier(identifier),
		InFormat:   inFormat,
		OutFormat:  outFormat,
		ClientID:   clientID,
	}
	if data != nil {
		encoded := base64.StdEncoding.EncodeToString(data)
		params.Data = &encoded
	}
	return c.callDocument(ctx, "convert", params)
}

// Join merges spooled documents in the given order. The stock engine only
// joins into pdf.
func (c *Client) Join(ctx context.Context, identifiers []string, inFormat, outFormat, clientID string) ([]byte, error) {
	params := JoinParams{InFormat: inFormat, OutFormat: outFormat, ClientID: clientID}
	for _, id := range identifiers {
		params.Identifiers = append(params.Identifiers, Identifier(id))
	}
	return c.callDocument(ctx, "join", params)
}

// SelfTest runs the daemon self-test.
func (c *Client) SelfTest(ctx context.Context) (SelfTestResult, error) {
	var res SelfTestResult
	err := c.Call(ctx, "test", nil, &res)
	return res, err
}

// SetLogLevel toggles verbose logging on the daemon.
func (c *Client) SetLogLevel(ctx context.Context, verbose bool) (LogLevelResult, error) {
	var res LogLevelResult
	err := c.Call(ctx, "set_log_level", LogLevelParams{Verbose: verbose}, &res)
	return res, err
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var res DaemonStatus
	err := c.Call(ctx, "status", nil, &res)
	return res, err
}

// History fetches recent journal entries.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	var res HistoryResult
	if err := c.Call(ctx, "history", HistoryParams{Limit: limit}, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (c *Client) callDocument(ctx context.Context, method string, params any) ([]byte, error) {
	var encoded string
	if err := c.Call(ctx, method, params, &encoded); err != nil {
		return nil, err
	}
	out, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return out, nil
}
