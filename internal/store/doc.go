// Package store persists sessions and their audio files in SQLite.
//
// Sessions and audio files live in two tables tied by a cascading foreign
// key. Upsert writes a session and all of its files in one transaction so a
// reader never observes a half-written checkpoint. Writes retry briefly on
// SQLITE_BUSY because the CLI and daemon may share the database file.
package store
