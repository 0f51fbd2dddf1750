// Package notifications pushes session outcomes to ntfy.
//
// NewService returns a no-op when no topic is configured, so callers publish
// unconditionally. Per-event toggles in the [notifications] section suppress
// completion or failure pushes without touching workflow code.
package notifications
