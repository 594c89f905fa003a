// Package logging assembles structured slog loggers and formatting helpers used
// across the quire daemon and CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing (including a shared LevelVar so verbosity can be flipped at
// runtime), and exposes context-aware helpers so orchestration code can tag log
// lines with call references, client tags, and RPC methods. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
