// Package journal records convert, join, and self-test calls in a SQLite
// database next to the logs.
//
// Each row captures the call reference, method, client tag, formats, document
// count, byte sizes, outcome, error class, start time, and duration. The
// housekeeper trims the table to a configured number of rows, and the history
// RPC reads the newest entries back.
package journal
