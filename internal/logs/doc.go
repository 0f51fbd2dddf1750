// Package logs reads the daemon's JSON log file for the CLI.
//
// Entries are decoded from the structured lines the file handler writes and
// can be narrowed to one session, a minimum level, or both. Last returns the
// newest matching entries along with the file offset to resume from, and
// Follow polls from that offset until its context ends. Lines that are not
// JSON are passed through as raw entries.
package logs
