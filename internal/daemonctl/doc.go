// Package daemonctl starts and stops a background quired for the CLI.
//
// Start launches `quire daemon` detached from the terminal and waits until the
// JSON-RPC status call answers. Stop signals the pid recorded in the pid file
// (or reported by status), waits for the API to go away, and escalates to
// SIGKILL after the grace period, cleaning up the pid file.
package daemonctl
