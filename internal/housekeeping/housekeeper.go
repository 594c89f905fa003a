package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"quire/internal/logging"
	"quire/internal/spool"
)

// JournalPruner trims the call journal.
type JournalPruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// Options configures a Housekeeper.
type Options struct {
	Interval time.Duration
	Expiry   time.Duration
	// Journal and KeepEntries are optional; without a journal only the spool is swept.
	Journal     JournalPruner
	KeepEntries int
}

// Housekeeper periodically sweeps the spool.
type Housekeeper struct {
	store  *spool.Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a housekeeper.
func New(store *spool.Store, opts Options, logger *slog.Logger) *Housekeeper {
	return &Housekeeper{
		store:  store,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "housekeeping"),
		now:    time.Now,
	}
}

// SweepResult summarizes one housekeeping pass.
type SweepResult struct {
	Spool         CleanResult
	JournalPruned int64
}

// Sweep runs one pass immediately.
func (h *Housekeeper) Sweep(ctx context.Context) SweepResult {
	now := h.now()
	res := SweepResult{Spool: CleanExpired(h.store, h.opts.Expiry, now, h.logger)}

	if h.opts.Journal != nil && h.opts.KeepEntries > 0 {
		pruned, err := h.opts.Journal.Prune(ctx, h.opts.KeepEntries)
		if err != nil {
			logging.WarnWithContext(h.logger, "journal prune failed", "journal_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check journal.db in log_dir"),
				logging.String(logging.FieldImpact, "call history keeps growing"),
			)
		}
		res.JournalPruned = pruned
	}

	if len(res.Spool.Removed) > 0 || len(res.Spool.Errors) > 0 || res.JournalPruned > 0 {
		h.logger.Info("housekeeping pass",
			logging.Int("spool_removed", len(res.Spool.Removed)),
			logging.Int("spool_errors", len(res.Spool.Errors)),
			logging.Int64("journal_pruned", res.JournalPruned),
		)
	}
	return res
}

// Run sweeps once, then on every interval tick until ctx is cancelled.
func (h *Housekeeper) Run(ctx context.Context) error {
	interval := h.opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.logger.Info("housekeeper started",
		logging.Duration("interval", interval),
		logging.Duration("expiry", h.opts.Expiry),
		logging.String("spool_dir", h.store.Dir()),
	)
	h.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			h.Sweep(ctx)
		case <-ctx.Done():
			h.logger.Info("housekeeper stopped")
			return nil
		}
	}
}
