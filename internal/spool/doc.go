// Package spool persists chunked uploads on local disk until a conversion
// consumes them or the housekeeper expires them.
//
// Entries are addressed by a caller-visible identifier but stored under the
// sha256 hex digest of that identifier, so raw client input never reaches a
// filesystem path. A Partial entry (name prefixed with "_") accumulates chunks
// and becomes Final through an atomic rename when the last chunk arrives. Only
// Final entries can be read.
package spool
