package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quire/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, spool, and backend status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return wrapDialError(err, client.Endpoint())
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatus(status, shouldColorize(out)))
			return nil
		},
	}
}

func renderStatus(status api.DaemonStatus, colorize bool) string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	daemonMsg := fmt.Sprintf("pid %d", status.PID)
	if status.StartedAt != "" {
		daemonMsg += ", started " + status.StartedAt
	}
	lines = append(lines,
		renderStatusLine("Running", passKind(status.Running, false), daemonMsg, colorize),
		renderStatusLine("Log level", statusInfo, status.LogLevel, colorize),
		renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize),
		"",
	)

	lines = append(lines, renderSectionHeader("Backend", colorize)...)
	reach := status.Backend.Address
	if status.Backend.Detail != "" {
		reach = status.Backend.Detail
	}
	busyKind := statusOK
	busyMsg := "idle"
	if status.Backend.Busy {
		busyKind, busyMsg = statusInfo, "converting"
	}
	restartMsg := "configured"
	if !status.Backend.RestartAvailable {
		restartMsg = "no restart_command; a hung backend needs manual recovery"
	}
	lines = append(lines,
		renderStatusLine("Listener", passKind(status.Backend.Reachable, false), reach, colorize),
		renderStatusLine("Slot", busyKind, busyMsg, colorize),
		renderStatusLine("Restart", passKind(status.Backend.RestartAvailable, true), restartMsg, colorize),
		"",
	)

	lines = append(lines, renderSectionHeader("Spool", colorize)...)
	lines = append(lines,
		renderStatusLine("Directory", statusInfo, status.Spool.Dir, colorize),
		renderStatusLine("Entries", statusInfo,
			fmt.Sprintf("%d partial, %d final", status.Spool.Partial, status.Spool.Final), colorize),
	)
	if status.JournalPath != "" {
		lines = append(lines, renderStatusLine("Journal", statusInfo,
			fmt.Sprintf("%d calls in %s", status.JournalEntries, status.JournalPath), colorize))
	}

	if len(status.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Checks", colorize)...)
		for _, check := range status.Checks {
			lines = append(lines, renderStatusLine(check.Name, passKind(check.Passed, false), check.Detail, colorize))
		}
	}

	if len(status.Dependencies) > 0 {
		lines = append(lines, "")
		rows := make([][]string, 0, len(status.Dependencies))
		for _, dep := range status.Dependencies {
			rows = append(rows, []string{dep.Name, dep.Command, yesNo(dep.Available), yesNo(dep.Optional), dep.Detail})
		}
		lines = append(lines, renderTable(
			[]string{"Dependency", "Command", "Available", "Optional", "Detail"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}
	return strings.Join(lines, "\n")
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent convert, join, and test calls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			entries, err := client.History(cmd.Context(), limit)
			if err != nil {
				return wrapDialError(err, client.Endpoint())
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No calls recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistory(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

func renderHistory(entries []api.HistoryEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		outcome := e.Outcome
		if e.ErrorKind != "" {
			outcome += " (" + e.ErrorKind + ")"
		}
		formats := e.InFormat + " -> " + e.OutFormat
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.StartedAt,
			e.Method,
			e.Client,
			formats,
			strconv.Itoa(e.Documents),
			strconv.FormatInt(e.BytesOut, 10),
			strconv.FormatInt(e.DurationMS, 10) + "ms",
			outcome,
		})
	}
	return renderTable(
		[]string{"ID", "Started", "Method", "Client", "Formats", "Docs", "Bytes Out", "Took", "Outcome"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}
