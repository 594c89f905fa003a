package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"quire/internal/api"
	"quire/internal/config"
	"quire/internal/convert"
	"quire/internal/journal"
	"quire/internal/logging"
	"quire/internal/preflight"
)

// Converter runs conversions, joins, and the self-test.
type Converter interface {
	Convert(ctx context.Context, req convert.Request) ([]byte, error)
	Join(ctx context.Context, req convert.JoinRequest) ([]byte, error)
	SelfTest(ctx context.Context) (convert.SelfTestResult, error)
	Busy() bool
}

// Spool is the write side of the upload spool.
type Spool interface {
	PutChunk(identifier string, data []byte, isLast bool) (string, error)
	Counts() (partial, final int, err error)
	Dir() string
}

// Journal records calls. A nil Journal disables recording and history.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	Count(ctx context.Context) (int, error)
	Path() string
}

// Dependencies are the collaborators the daemon serves RPC calls with.
type Dependencies struct {
	Spool     Spool
	Converter Converter
	Journal   Journal
	// Levels is flipped by set_log_level.
	Levels *slog.LevelVar
	// RestartConfigured reports whether a hung backend can be restarted.
	RestartConfigured bool
}

// Daemon serves the RPC API and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Dependencies
	api    *apiServer
	checks func(context.Context, *config.Config) []preflight.Result

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Spool == nil || deps.Converter == nil {
		return nil, errors.New("daemon requires config, spool, and converter")
	}
	if deps.Levels == nil {
		deps.Levels = new(slog.LevelVar)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		checks:   preflight.RunAll,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and binds the API listener. Call Serve to
// begin answering requests.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another quired instance is already running")
	}

	if err := d.api.listen(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("quire daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.addr()),
	)
	return nil
}

// Serve answers API requests until ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not started")
	}
	return d.api.serve(ctx)
}

// Stop shuts the API server down and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("quire daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the bound API address, or "" before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    api.FormatTime(d.startedAt),
		LockFilePath: d.lockPath,
		LogLevel:     strings.ToLower(d.deps.Levels.Level().String()),
		Spool:        api.SpoolStatus{Dir: d.deps.Spool.Dir()},
		Backend: api.BackendStatus{
			Address:          d.cfg.BackendAddress(),
			Busy:             d.deps.Converter.Busy(),
			RestartAvailable: d.deps.RestartConfigured,
		},
	}

	if partial, final, err := d.deps.Spool.Counts(); err != nil {
		d.logger.Warn("spool count failed", logging.Error(err))
	} else {
		status.Spool.Partial = partial
		status.Spool.Final = final
	}

	for _, r := range d.checks(ctx, d.cfg) {
		status.Checks = append(status.Checks, api.CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
		if r.Name == preflight.BackendCheckName {
			status.Backend.Reachable = r.Passed
			status.Backend.Detail = r.Detail
		}
	}

	for _, dep := range preflight.CheckSystemDeps(d.cfg) {
		status.Dependencies = append(status.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}

	if d.deps.Journal != nil {
		status.JournalPath = d.deps.Journal.Path()
		if count, err := d.deps.Journal.Count(ctx); err != nil {
			d.logger.Warn("journal count failed", logging.Error(err))
		} else {
			status.JournalEntries = count
		}
	}
	return status
}

// record journals one call; failures are logged and never surface to the client.
func (d *Daemon) record(ctx context.Context, entry journal.Entry, err error) {
	if d.deps.Journal == nil {
		return
	}
	entry.Outcome = journal.OutcomeDone
	if err != nil {
		entry.Outcome = journal.OutcomeFailed
		entry.ErrorKind = errorKind(err)
	}
	entry.Duration = time.Since(entry.StartedAt)
	if _, recErr := d.deps.Journal.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		logging.WarnWithContext(logging.WithContext(ctx, d.logger), "journal write failed", "journal_write_failed",
			logging.Error(recErr),
			logging.String(logging.FieldImpact, "call missing from history"),
		)
	}
}
