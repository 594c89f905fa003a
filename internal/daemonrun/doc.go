// Package daemonrun assembles the quired process: it loads logging, opens the
// spool and call journal, builds the backend connector and orchestrator, and
// runs the API server beside the housekeeper until a signal arrives. Backend
// restarts are reported to ntfy when a topic is configured.
package daemonrun
