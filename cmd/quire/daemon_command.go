package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"quire/internal/daemonctl"
	"quire/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the quire daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Start with debug logging and source locations")
	return cmd
}

func (c *commandContext) controller() (*daemonctl.Controller, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	return &daemonctl.Controller{Prober: client, PIDPath: cfg.PIDPath()}, nil
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctl, err := ctx.controller()
			if err != nil {
				return err
			}
			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			res, err := ctl.Start(cmd.Context(), executable, daemonctl.LaunchOptions{
				ConfigPath: ctx.flags.config,
				LogLevel:   logLevel,
			}, wait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.State == daemonctl.StartStateAlreadyRunning {
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", res.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon started (pid %d)\n", res.PID)
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	cmd.Flags().DurationVar(&wait, "wait", 15*time.Second, "How long to wait for the API to answer")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctl, err := ctx.controller()
			if err != nil {
				return err
			}
			res, err := ctl.Stop(cmd.Context(), grace)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if res.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in %s; killed pid %d\n", grace, res.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", res.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait before sending SIGKILL")
	return cmd
}
