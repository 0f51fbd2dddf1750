package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"roundtable/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "ffmpeg")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023'\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "FFmpeg", Command: present},
		{Name: "FFprobe", Command: "clearly-not-present-binary", Optional: true},
		{Name: "Empty", Command: " "},
	}

	results := CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Version != "6.1.1-3ubuntu5" {
		t.Fatalf("expected available ffmpeg with version, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for empty command: %q", results[2].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 1 || missing[0] != "Empty" {
		t.Fatalf("unexpected missing list %v", missing)
	}
}

func TestForConfigUsesConfiguredBinaries(t *testing.T) {
	cfg := config.Default()
	cfg.Conversion.FFmpegBinary = "/opt/ffmpeg/bin/ffmpeg"
	reqs := ForConfig(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" || reqs[0].Optional {
		t.Fatalf("unexpected ffmpeg requirement %#v", reqs[0])
	}
	if reqs[1].Command != "ffprobe" || !reqs[1].Optional {
		t.Fatalf("unexpected ffprobe requirement %#v", reqs[1])
	}
}

func TestParseVersion(t *testing.T) {
	if got := parseVersion("ffprobe version n7.0 Copyright\nbuilt with gcc"); got != "n7.0" {
		t.Fatalf("parseVersion = %q", got)
	}
	if got := parseVersion("garbage"); got != "" {
		t.Fatalf("expected empty version, got %q", got)
	}
}
