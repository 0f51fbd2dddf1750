package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected the single non-nil handler to be returned as-is")
	}
}

func TestFanoutHandlerRoutesByLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	info := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(info, debug)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug to be enabled through the debug handler")
	}

	logger := slog.New(h)
	logger.Debug("debug only")
	if infoBuf.Len() != 0 {
		t.Fatal("info handler received a debug record")
	}
	if debugBuf.Len() == 0 {
		t.Fatal("debug handler missed the record")
	}

	logger.Info("both")
	if infoBuf.Len() == 0 {
		t.Fatal("info handler missed the info record")
	}
}

func TestFanoutHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))
	logger := slog.New(h).With(slog.String(FieldSessionID, "s-1")).WithGroup("merge")
	logger.Info("merged", slog.Int("utterances", 4))

	for name, buf := range map[string]*bytes.Buffer{"a": &a, "b": &b} {
		out := buf.Bytes()
		if !bytes.Contains(out, []byte(`"session_id":"s-1"`)) {
			t.Fatalf("%s: missing session attr: %s", name, out)
		}
		if !bytes.Contains(out, []byte(`"merge":{"utterances":4}`)) {
			t.Fatalf("%s: missing grouped attr: %s", name, out)
		}
	}
}
