package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"roundtable/internal/logging"
)

// Entry is one decoded log line.
type Entry struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	SessionID string
	Attrs     map[string]any
	Raw       string
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	SessionID string
	MinLevel  slog.Level
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	return e.Level >= f.MinLevel
}

// ParseEntry decodes a JSON log line. Anything else becomes an info entry
// holding the raw text.
func ParseEntry(line string) Entry {
	entry := Entry{Raw: line, Level: slog.LevelInfo}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		entry.Message = line
		return entry
	}
	if raw, ok := fields["ts"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			entry.Time = ts
		}
	}
	if raw, ok := fields["level"].(string); ok {
		_ = entry.Level.UnmarshalText([]byte(raw))
	}
	entry.Message, _ = fields["msg"].(string)
	entry.Component, _ = fields[logging.FieldComponent].(string)
	entry.SessionID, _ = fields[logging.FieldSessionID].(string)
	for _, key := range []string{"ts", "level", "msg", logging.FieldComponent, logging.FieldSessionID} {
		delete(fields, key)
	}
	if len(fields) > 0 {
		entry.Attrs = fields
	}
	return entry
}

// Format renders e on one line for terminal output.
func (e Entry) Format() string {
	if e.Time.IsZero() && e.Attrs == nil && e.Component == "" {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format(time.DateTime))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", e.Level.String())
	if e.Component != "" {
		b.WriteString(e.Component)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.SessionID != "" {
		fmt.Fprintf(&b, " %s=%s", logging.FieldSessionID, e.SessionID)
	}
	keys := make([]string, 0, len(e.Attrs))
	for key := range e.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Attrs[key])
	}
	return b.String()
}
