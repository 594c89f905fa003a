package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"quire/internal/api"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates neither the API nor a live pid was found.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StatusProber is the slice of the API client daemonctl needs.
type StatusProber interface {
	Status(ctx context.Context) (api.DaemonStatus, error)
}

// LaunchOptions controls how the background daemon is spawned.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartState reports what Start did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start outcome.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Controller holds the process hooks so tests can substitute them.
type Controller struct {
	Prober  StatusProber
	PIDPath string
	// Launch spawns the daemon; defaults to LaunchDetached.
	Launch func(executable string, opts LaunchOptions) error
	// Signal delivers sig to pid; defaults to unix.Kill.
	Signal func(pid int, sig syscall.Signal) error
}

func (c *Controller) launch(executable string, opts LaunchOptions) error {
	if c.Launch != nil {
		return c.Launch(executable, opts)
	}
	return LaunchDetached(executable, opts)
}

func (c *Controller) signal(pid int, sig syscall.Signal) error {
	if c.Signal != nil {
		return c.Signal(pid, sig)
	}
	return unix.Kill(pid, sig)
}

// LaunchDetached starts `<executable> daemon` in its own session.
func LaunchDetached(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Start launches the daemon unless the API already answers, then waits up to
// wait for it to report running.
func (c *Controller) Start(ctx context.Context, executable string, opts LaunchOptions, wait time.Duration) (StartResult, error) {
	if status, err := c.Prober.Status(ctx); err == nil && status.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	}
	if err := c.launch(executable, opts); err != nil {
		return StartResult{}, err
	}

	status, err := c.waitFor(ctx, wait, func(status api.DaemonStatus, err error) bool {
		return err == nil && status.Running
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("daemon failed to start: %w", err)
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// Stop terminates the daemon, escalating to SIGKILL after grace.
func (c *Controller) Stop(ctx context.Context, grace time.Duration) (StopResult, error) {
	pid, err := c.resolvePID(ctx)
	if err != nil {
		return StopResult{}, err
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	result := StopResult{PID: pid}

	if err := c.signal(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			c.removePIDFile()
			return StopResult{}, ErrDaemonNotRunning
		}
		return result, fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	_, err = c.waitFor(ctx, grace, func(_ api.DaemonStatus, err error) bool {
		return err != nil && !c.alive(pid)
	})
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if err := c.signal(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	c.removePIDFile()
	result.ForcedKill = true
	return result, nil
}

// resolvePID prefers the live API answer and falls back to the pid file.
func (c *Controller) resolvePID(ctx context.Context) (int, error) {
	if status, err := c.Prober.Status(ctx); err == nil && status.PID > 0 {
		return status.PID, nil
	}
	pid, err := readPIDFile(c.PIDPath)
	if err != nil {
		return 0, err
	}
	if pid <= 0 || !c.alive(pid) {
		c.removePIDFile()
		return 0, ErrDaemonNotRunning
	}
	return pid, nil
}

func (c *Controller) alive(pid int) bool {
	err := c.signal(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (c *Controller) waitFor(ctx context.Context, timeout time.Duration, done func(api.DaemonStatus, error) bool) (api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		status, err := c.Prober.Status(probeCtx)
		cancel()
		if done(status, err) {
			return status, nil
		}
		if !time.Now().Before(deadline) {
			if err == nil {
				err = errors.New("timed out")
			}
			return status, err
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Controller) removePIDFile() {
	if c.PIDPath != "" {
		_ = os.Remove(c.PIDPath)
	}
}

func readPIDFile(path string) (int, error) {
	if path == "" {
		return 0, ErrDaemonNotRunning
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrDaemonNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("read pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %q: %w", path, err)
	}
	return pid, nil
}
