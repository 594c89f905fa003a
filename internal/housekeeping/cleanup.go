package housekeeping

import (
	"log/slog"
	"time"

	"quire/internal/logging"
	"quire/internal/spool"
)

// CleanResult contains the outcome of one spool sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanExpired removes every spool entry, Partial or Final, last modified more
// than maxAge before now.
func CleanExpired(store *spool.Store, maxAge time.Duration, now time.Time, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	entries, err := store.Entries()
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: store.Dir(), Error: err})
		return result
	}

	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if !entry.ModifiedAt.Before(cutoff) {
			continue
		}
		if err := store.Remove(entry); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: entry.Path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove expired spool entry",
					logging.String("path", entry.Path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "spool_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check spool_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, entry.Path)
		if logger != nil {
			logger.Debug("removed expired spool entry",
				logging.String("key", entry.Key),
				logging.String("state", string(entry.State)),
				logging.Duration("age", now.Sub(entry.ModifiedAt)),
				logging.String(logging.FieldEventType, "spool_expired"),
			)
		}
	}
	return result
}
