// Package convert orchestrates conversions and joins against the document
// engine.
//
// Every call validates its input, waits for the single process-wide backend
// slot, and then runs the connect/load/render/close span under a wall-clock
// deadline. A span that outlives the deadline triggers one engine restart and
// fails the call with an opaque ErrConversionFailed. The slot stays held by the
// abandoned span until it returns, unless the restart succeeded.
package convert
