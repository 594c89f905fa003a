package daemon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"quire/internal/api"
	"quire/internal/convert"
	"quire/internal/journal"
	"quire/internal/logging"
	"quire/internal/services"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

type rpcCall struct {
	method string
	params json.RawMessage
	remote string
}

type methodFunc func(ctx context.Context, call rpcCall) (any, error)

func (d *Daemon) methods() map[string]methodFunc {
	return map[string]methodFunc{
		"upload":        d.rpcUpload,
		"convert":       d.rpcConvert,
		"join":          d.rpcJoin,
		"test":          d.rpcTest,
		"set_log_level": d.rpcSetLogLevel,
		"log":           d.rpcSetLogLevel,
		"status":        d.rpcStatus,
		"history":       d.rpcHistory,
	}
}

// decodeParams accepts named params only; absent params decode to the zero value.
func decodeParams(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '{' {
		return api.InvalidParams("params must be an object of named values")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return api.InvalidParams("invalid params: %v", err)
	}
	return nil
}

// callContext stamps a fresh call reference and the method on ctx.
func callContext(ctx context.Context, method string) context.Context {
	ctx = services.WithCallRef(ctx, uuid.NewString())
	return services.WithMethod(ctx, method)
}

func clientTag(clientID, remote string) string {
	if clientID = strings.TrimSpace(clientID); clientID != "" {
		return clientID
	}
	return "unknown - " + remote
}

func errorKind(err error) string {
	var rpcErr *api.Error
	if errors.As(err, &rpcErr) {
		return "invalid_params"
	}
	return services.Kind(err)
}

func (d *Daemon) rpcUpload(ctx context.Context, call rpcCall) (any, error) {
	var params api.UploadParams
	if err := decodeParams(call.params, &params); err != nil {
		return nil, err
	}
	identifier, err := d.deps.Spool.PutChunk(params.Identifier.String(), []byte(params.Data), params.IsLast)
	if err != nil {
		return nil, err
	}
	logging.WithContext(services.WithMethod(ctx, call.method), d.logger).Debug("chunk spooled",
		logging.String("identifier", identifier),
		logging.Int("chunk_bytes", len(params.Data)),
		logging.Bool("is_last", params.IsLast),
	)
	return api.UploadResult{Identifier: identifier}, nil
}

func (d *Daemon) rpcConvert(ctx context.Context, call rpcCall) (any, error) {
	var params api.ConvertParams
	if err := decodeParams(call.params, &params); err != nil {
		return nil, err
	}
	params.Normalize()

	ctx = callContext(ctx, call.method)
	ctx = services.WithClientTag(ctx, clientTag(params.ClientID, call.remote))
	entry := d.newEntry(ctx, call.method, params.InFormat, params.OutFormat, 1)

	data, err := params.DecodeData()
	if err != nil {
		err = services.Wrap(services.ErrNoData, "api", "convert", "data is not valid base64", err)
		d.record(ctx, entry, err)
		return nil, err
	}
	entry.BytesIn = int64(len(data))

	out, err := d.deps.Converter.Convert(ctx, convert.Request{
		Data:       data,
		Identifier: params.Identifier.String(),
		InFormat:   params.InFormat,
		OutFormat:  params.OutFormat,
	})
	entry.BytesOut = int64(len(out))
	d.record(ctx, entry, err)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// rpcJoin merges spooled uploads in order. The unoconvert engine can only
// join into pdf: any other out_format is answered with the conversion failed
// error (-32005) before any part is rendered.
func (d *Daemon) rpcJoin(ctx context.Context, call rpcCall) (any, error) {
	var params api.JoinParams
	if err := decodeParams(call.params, &params); err != nil {
		return nil, err
	}
	params.Normalize()

	ctx = callContext(ctx, call.method)
	ctx = services.WithClientTag(ctx, clientTag(params.ClientID, call.remote))
	entry := d.newEntry(ctx, call.method, params.InFormat, params.OutFormat, len(params.Identifiers))

	out, err := d.deps.Converter.Join(ctx, convert.JoinRequest{
		Identifiers: params.IdentifierStrings(),
		InFormat:    params.InFormat,
		OutFormat:   params.OutFormat,
	})
	entry.BytesOut = int64(len(out))
	d.record(ctx, entry, err)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func (d *Daemon) rpcTest(ctx context.Context, call rpcCall) (any, error) {
	ctx = callContext(ctx, call.method)
	ctx = services.WithClientTag(ctx, clientTag("", call.remote))
	entry := d.newEntry(ctx, call.method, "odt", "pdf", 1)

	result, err := d.deps.Converter.SelfTest(ctx)
	d.record(ctx, entry, err)
	if err != nil {
		return nil, err
	}
	return api.SelfTestResult{Status: result.Status, Digest: result.Digest, Pages: result.Pages}, nil
}

func (d *Daemon) rpcSetLogLevel(ctx context.Context, call rpcCall) (any, error) {
	var params api.LogLevelParams
	if err := decodeParams(call.params, &params); err != nil {
		return nil, err
	}
	logging.SetVerbose(d.deps.Levels, params.Verbose)
	level := strings.ToLower(d.deps.Levels.Level().String())
	d.logger.Info("log level changed", logging.String("level", level), logging.String("remote", call.remote))
	return api.LogLevelResult{Ack: "changed", Level: level}, nil
}

func (d *Daemon) rpcStatus(ctx context.Context, _ rpcCall) (any, error) {
	return d.Status(ctx), nil
}

func (d *Daemon) rpcHistory(ctx context.Context, call rpcCall) (any, error) {
	var params api.HistoryParams
	if err := decodeParams(call.params, &params); err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, api.InvalidParams("limit must not be negative")
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	if d.deps.Journal == nil {
		return api.HistoryResult{Entries: []api.HistoryEntry{}}, nil
	}
	entries, err := d.deps.Journal.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return api.HistoryResult{Entries: api.FromJournalEntries(entries)}, nil
}

func (d *Daemon) newEntry(ctx context.Context, method, inFormat, outFormat string, documents int) journal.Entry {
	ref, _ := services.CallRefFromContext(ctx)
	client, _ := services.ClientTagFromContext(ctx)
	return journal.Entry{
		CallRef:   ref,
		Method:    method,
		Client:    client,
		InFormat:  inFormat,
		OutFormat: outFormat,
		Documents: documents,
		StartedAt: time.Now(),
	}
}
