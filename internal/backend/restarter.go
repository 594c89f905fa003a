package backend

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"quire/internal/logging"
)

// RestarterOption configures a Restarter.
type RestarterOption func(*Restarter)

// WithRestartExecutor injects a custom executor (primarily for tests).
func WithRestartExecutor(exec Executor) RestarterOption {
	return func(r *Restarter) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithRestartSleep replaces the grace wait (primarily for tests).
func WithRestartSleep(sleep func(context.Context, time.Duration) error) RestarterOption {
	return func(r *Restarter) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// Restarter runs the configured engine restart hook through sh -c.
type Restarter struct {
	command string
	grace   time.Duration
	exec    Executor
	sleep   func(context.Context, time.Duration) error
	logger  *slog.Logger
}

// NewRestarter constructs a restarter. An empty command disables restarts.
func NewRestarter(command string, grace time.Duration, logger *slog.Logger, opts ...RestarterOption) *Restarter {
	r := &Restarter{
		command: strings.TrimSpace(command),
		grace:   grace,
		exec:    commandExecutor{},
		sleep:   sleepContext,
		logger:  logging.NewComponentLogger(logger, "restart"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Configured reports whether a restart command is set.
func (r *Restarter) Configured() bool {
	return r != nil && r.command != ""
}

// Restart runs the hook and waits the grace period on success. It never
// returns an error: failures are logged and reported as false.
func (r *Restarter) Restart(ctx context.Context) bool {
	logger := logging.WithContext(ctx, r.logger)
	if !r.Configured() {
		logging.WarnWithContext(logger, "engine restart skipped; no restart command configured", "restart_unconfigured",
			logging.String(logging.FieldErrorHint, "set backend.restart_command or QUIRE_RESTART_COMMAND"),
			logging.String(logging.FieldImpact, "hung engine stays hung; backend slot held until the call returns"),
		)
		return false
	}

	started := time.Now()
	logger.Info("restarting engine", logging.String("command", r.command))
	if err := r.exec.Run(ctx, "sh", []string{"-c", r.command}, nil, io.Discard); err != nil {
		logging.ErrorWithContext(logger, "engine restart failed", "restart_failed",
			logging.String("command", r.command),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run the restart command manually and check its exit status"),
		)
		return false
	}
	if err := r.sleep(ctx, r.grace); err != nil {
		logger.Warn("restart grace period interrupted", logging.Error(err))
	}
	logger.Info("engine restarted", logging.Duration("elapsed", time.Since(started)))
	return true
}
