// Package backend talks to the external document engine.
//
// The engine is stateful and single-threaded: callers acquire a Session per
// call through a Connector (bounded retries with a fixed backoff), load one
// document, optionally append more, render the result, and close. Restarter
// runs the operator-configured restart hook when the engine hangs.
//
// UnoEngine is the shipped Engine. It health-checks the unoserver listener with
// a TCP dial and renders through the unoconvert client, merging multi-document
// PDF output with pdfcpu.
package backend
