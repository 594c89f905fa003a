package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Keep    []string
}

// PruneOldLogs removes files matching target that were last modified before
// now-maxAge and returns the removed paths. A non-positive maxAge disables
// pruning. Files listed in Keep are never removed.
func PruneOldLogs(logger *slog.Logger, maxAge time.Duration, now time.Time, target RetentionTarget) []string {
	dir := strings.TrimSpace(target.Dir)
	if maxAge <= 0 || dir == "" {
		return nil
	}
	cutoff := now.Add(-maxAge)

	keep := make(map[string]struct{}, len(target.Keep))
	for _, path := range target.Keep {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			keep[abs] = struct{}{}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pat := strings.TrimSpace(target.Pattern); pat != "" {
			if matched, err := filepath.Match(pat, entry.Name()); err != nil || !matched {
				continue
			}
		}
		fullPath, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if _, skip := keep[fullPath]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed = append(removed, fullPath)
		if logger != nil {
			logger.Info("log pruned", String("path", fullPath), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
