// Package preflight provides readiness checks for the filesystem paths and
// the conversion listener that quire depends on.
//
// The daemon runs them once at startup and logs failures without refusing to
// start, since the listener is often brought up after quired. The status RPC
// and the "quire status" command report the same results.
package preflight
