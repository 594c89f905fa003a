// Package services defines shared utilities consumed by the conversion
// orchestrator, the spool, and the RPC front end.
//
// Key responsibilities:
//   - Context helpers that stamp call references, client tags, and RPC method
//     names for logging and journaling.
//   - Structured error markers plus the Wrap helper that tag failures so the
//     RPC layer can map them to stable error codes without leaking detail.
//
// Use these helpers when wiring new backend-facing code so error handling and
// observability stay uniform across the daemon.
package services
