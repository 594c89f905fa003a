// Package logs reads the daemon log file for `quire logs`.
//
// Last returns the final lines of the file together with the byte offset to
// resume from; Since reads whatever was appended after an offset, optionally
// polling until new lines arrive. When the file shrinks below the offset
// (logrotate copytruncate) reading restarts from the top.
package logs
