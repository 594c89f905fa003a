package preflight

import (
	"context"

	"quire/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes the readiness checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	return runAll(ctx, cfg, nil)
}

func runAll(ctx context.Context, cfg *config.Config, dial Dialer) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Spool directory", cfg.Paths.SpoolDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	results = append(results, CheckBackend(ctx, cfg.Backend.Host, cfg.Backend.Port, dial))
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
