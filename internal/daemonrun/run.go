package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"quire/internal/backend"
	"quire/internal/config"
	"quire/internal/convert"
	"quire/internal/daemon"
	"quire/internal/deps"
	"quire/internal/housekeeping"
	"quire/internal/journal"
	"quire/internal/logging"
	"quire/internal/notifications"
	"quire/internal/preflight"
	"quire/internal/spool"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level from the config when set.
	LogLevel    string
	Development bool
}

// Run starts the quire daemon and blocks until SIGINT, SIGTERM, or a fatal
// component error.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	levels := new(slog.LevelVar)
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg, levels)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.Development {
		levels.Set(slog.LevelDebug)
	}

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	pruneLogs(logger, cfg, time.Now())

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := spool.New(cfg.Paths.SpoolDir, spool.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}

	var calls *journal.Store
	if cfg.Journal.Enabled {
		calls, err = journal.Open(cfg.JournalPath())
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer calls.Close()
	}

	engine, err := backend.NewUnoEngine(cfg.Backend.UnoconvertBinary, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	connector := backend.NewConnector(engine, cfg.Backend.Host, cfg.Backend.Port,
		cfg.Backend.ConnectAttempts, cfg.ConnectBackoff(), logger)
	restarter := backend.NewRestarter(cfg.Backend.RestartCommand, cfg.RestartGrace(), logger)
	if !restarter.Configured() {
		logging.WarnWithContext(logger, "no backend restart command configured", "restart_unconfigured",
			logging.String(logging.FieldErrorHint, "set backend.restart_command or QUIRE_RESTART_COMMAND"),
			logging.String(logging.FieldImpact, "a hung backend keeps the conversion slot until it answers"),
		)
	}

	alerts := &alertingRestarter{
		inner:    restarter,
		notifier: notifications.NewService(cfg),
		address:  cfg.BackendAddress(),
		command:  cfg.Backend.RestartCommand,
		logger:   logger,
	}

	orchestrator := convert.New(store, connector, alerts, logger, convert.Options{
		Timeout:  cfg.ConversionTimeout(),
		MaxParts: cfg.Backend.MaxDocumentParts,
	})

	collaborators := daemon.Dependencies{
		Spool:             store,
		Converter:         orchestrator,
		Levels:            levels,
		RestartConfigured: restarter.Configured(),
	}
	hkOpts := housekeeping.Options{
		Interval: cfg.HousekeepingInterval(),
		Expiry:   cfg.SpoolExpiry(),
	}
	if calls != nil {
		collaborators.Journal = calls
		hkOpts.Journal = calls
		hkOpts.KeepEntries = cfg.Journal.MaxEntries
	}

	d, err := daemon.New(cfg, collaborators, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Close()

	keeper := housekeeping.New(store, hkOpts, logger)

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return d.Serve(groupCtx)
	})
	group.Go(func() error {
		return keeper.Run(groupCtx)
	})

	err = group.Wait()
	logger.Info("quire daemon shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// pruneLogs drops rotated daemon logs past the retention window.
func pruneLogs(logger *slog.Logger, cfg *config.Config, now time.Time) []string {
	if cfg.Logging.RetentionDays <= 0 {
		return nil
	}
	maxAge := time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
	return logging.PruneOldLogs(logger, maxAge, now, logging.RetentionTarget{
		Dir:     cfg.Paths.LogDir,
		Pattern: "quire.log.*",
		Keep:    []string{cfg.LogPath()},
	})
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("backend", cfg.BackendAddress()),
		logging.Bool("api_token_set", cfg.API.Token != ""),
		logging.Bool("journal_enabled", cfg.Journal.Enabled),
	}
	statuses := preflight.CheckSystemDeps(cfg)
	for _, status := range statuses {
		key := strings.ReplaceAll(strings.ToLower(status.Name), " ", "_") + "_available"
		attrs = append(attrs, logging.Bool(key, status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install it or set backend.unoconvert_binary"),
			logging.String(logging.FieldImpact, "conversions will fail"),
		)
	}
}

// logPreflight reports readiness problems without refusing to start; the
// listener is often brought up after the daemon.
func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "calls may fail until this is fixed"),
		)
	}
}
