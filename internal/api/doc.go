// Package api defines the JSON-RPC 2.0 wire format spoken between quired and
// its clients, plus an HTTP client used by the quire CLI.
//
// # Key Types
//
// Request/Response/Error: the JSON-RPC envelope. Error codes below -32000 are
// protocol failures; -32001 through -32005 map the conversion failure classes
// from package services.
//
// Identifier: a spool identifier that decodes from either a JSON string or a
// JSON number so older clients sending integers keep working.
//
// ConvertParams/JoinParams/UploadParams: named params per method, with the
// in_mime/out_mime aliases folded in by Normalize.
//
// DaemonStatus/HistoryEntry: payloads for the status and history methods.
//
// # Design Notes
//
// Payload keys are snake_case to match the method params. Timestamps use
// RFC3339 with milliseconds. Conversion output travels as standard base64.
package api
