package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSelfTestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Convert a generated document end to end through the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.SelfTest(cmd.Context())
			if err != nil {
				return wrapDialError(err, client.Endpoint())
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Self-test", statusOK, fmt.Sprintf("%d page(s)", result.Pages), colorize))
			fmt.Fprintln(out, renderStatusLine("Digest", statusInfo, result.Digest, colorize))
			return nil
		},
	}
}

func newLogLevelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "log-level verbose|normal",
		Short:     "Switch daemon logging between debug and info",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"verbose", "normal"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var verbose bool
			switch strings.ToLower(strings.TrimSpace(args[0])) {
			case "verbose", "debug":
				verbose = true
			case "normal", "info":
				verbose = false
			default:
				return fmt.Errorf("unknown level %q (want verbose or normal)", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.SetLogLevel(cmd.Context(), verbose)
			if err != nil {
				return wrapDialError(err, client.Endpoint())
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Log level %s (%s)\n", result.Level, result.Ack)
			return nil
		},
	}
}
