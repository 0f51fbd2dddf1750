// Package logging builds the slog loggers shared by the CLI and daemon.
//
// Console output is a single human-readable line per record, prefixed with
// the component and a session/file/stage subject. When a log directory is
// configured every record is also written as JSON to roundtable.log so that
// jq and similar tooling can consume it. Context helpers tag
// records with the session, file, and stage carried on a context.Context.
package logging
