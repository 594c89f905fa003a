// Package daemon coordinates the long-running quired process.
//
// It owns the flock-based single-instance lock, the JSON-RPC HTTP server, and
// the glue between RPC methods and the spool, the conversion orchestrator,
// and the call journal. Every convert, join, and test call is stamped with a
// call reference and a client tag so its log lines and journal row line up.
//
// Keep orchestration logic out of here: conversion rules live in package
// convert, and the daemon focuses on transport, startup, and shutdown.
package daemon
