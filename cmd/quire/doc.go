// Command quire is the command-line front end for the quired conversion
// daemon. It runs the daemon in the foreground or starts and stops it in the
// background, uploads and converts documents over the JSON-RPC API, and
// reports status, call history, and the daemon log.
package main
