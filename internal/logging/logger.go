package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"quire/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives every record; nil means stderr.
	Console io.Writer
	// Files are appended to alongside the console.
	Files       []string
	Development bool
	// Levels, when set, receives the parsed level and is shared with the handler
	// so callers can adjust verbosity at runtime.
	Levels *slog.LevelVar
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := ParseLevel(opts.Level)
	levelVar := opts.Levels
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}
	levelVar.Set(level)

	out, err := openSinks(opts.Console, opts.Files)
	if err != nil {
		return nil, err
	}
	addSource := opts.Development || level <= slog.LevelDebug

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "json":
		handler = newJSONHandler(out, levelVar, addSource)
	case "console", "":
		handler = newPrettyHandler(out, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), nil
}

// NewFromConfig creates the daemon logger: console on stderr plus
// <log_dir>/quire.log.
func NewFromConfig(cfg *config.Config, levels *slog.LevelVar) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Levels: levels})
	}
	var files []string
	if cfg.Paths.LogDir != "" {
		files = append(files, cfg.LogPath())
	}
	return New(Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Files:  files,
		Levels: levels,
	})
}

// SetVerbose flips levels between debug and info.
func SetVerbose(levels *slog.LevelVar, verbose bool) {
	if levels == nil {
		return
	}
	if verbose {
		levels.Set(slog.LevelDebug)
		return
	}
	levels.Set(slog.LevelInfo)
}

// ParseLevel maps a configured level name onto a slog level. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "dpanic", "panic", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openSinks(console io.Writer, files []string) (io.Writer, error) {
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{console}
	seen := map[string]struct{}{}
	for _, path := range files {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		writers = append(writers, file)
	}
	if len(writers) == 1 {
		return console, nil
	}
	return io.MultiWriter(writers...), nil
}
