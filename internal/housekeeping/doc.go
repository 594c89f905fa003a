// Package housekeeping expires old spool entries and trims the call journal on
// a fixed cadence.
package housekeeping
