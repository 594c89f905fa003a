package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"quire/internal/services"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// Standard and application error codes.
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodeInternal           = -32000
	CodeNoIdentifier       = -32001
	CodeNoData             = -32002
	CodeResourceLimit      = -32003
	CodeBackendUnavailable = -32004
	CodeConversionFailed   = -32005
)

// Request is a JSON-RPC 2.0 call. ID is kept raw so it is echoed back verbatim.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the caller omitted the id.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 reply. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is the JSON-RPC error object. It also satisfies the error interface so
// clients can return it directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an error object with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// InvalidParams reports a params decoding or validation failure.
func InvalidParams(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// FromError maps an orchestration failure onto its stable error code. The
// message is the sentinel text only; wrapped detail stays in the daemon log.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch marker := services.Marker(err); marker {
	case services.ErrNoIdentifier:
		return NewError(CodeNoIdentifier, marker.Error())
	case services.ErrNoData:
		return NewError(CodeNoData, marker.Error())
	case services.ErrResourceLimit:
		return NewError(CodeResourceLimit, marker.Error())
	case services.ErrBackendUnavailable:
		return NewError(CodeBackendUnavailable, marker.Error())
	case services.ErrConversionFailed, services.ErrConversionTimeout:
		return NewError(CodeConversionFailed, services.ErrConversionFailed.Error())
	default:
		return NewError(CodeInternal, "internal error")
	}
}

// Result builds a success response carrying payload.
func Result(id json.RawMessage, payload any) (Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode result: %w", err)
	}
	return Response{JSONRPC: Version, Result: raw, ID: normalizeID(id)}, nil
}

// Failure builds an error response.
func Failure(id json.RawMessage, rpcErr *Error) Response {
	return Response{JSONRPC: Version, Error: rpcErr, ID: normalizeID(id)}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
