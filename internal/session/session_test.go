package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSized(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Repeat("x", size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFromFolderSkipsSidecarsAndClassifies(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "2026-03-14_The Thing")
	if err := os.MkdirAll(filepath.Join(dir, "transcripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeSized(t, dir, "ZOOM0001_LR.WAV", 300)
	writeSized(t, dir, "ZOOM0001_Tr1.WAV", 100)
	writeSized(t, dir, "ZOOM0001_Tr2.WAV", 100)
	writeSized(t, dir, "notes.txt", 10)
	writeSized(t, dir, ".DS_Store", 10)
	writeSized(t, filepath.Join(dir, "transcripts"), "old.json", 10)

	s, err := FromFolder(dir, IngestOptions{Participants: map[int]string{1: "Alex", 2: " "}})
	if err != nil {
		t.Fatalf("FromFolder: %v", err)
	}
	if len(s.Files) != 3 {
		t.Fatalf("expected 3 recordings, got %d", len(s.Files))
	}
	master := s.Master()
	if master == nil || master.Name != "ZOOM0001_LR.WAV" {
		t.Fatalf("unexpected master: %+v", master)
	}
	if idx := s.Files[1].SpeakerIndex; idx == nil || *idx != 1 {
		t.Fatalf("expected mic index 1 on %s", s.Files[1].Name)
	}
	if s.SubjectTitle != "The Thing" {
		t.Fatalf("subject = %q", s.SubjectTitle)
	}
	if want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC); !s.RecordingDate.Equal(want) {
		t.Fatalf("recording date = %s", s.RecordingDate)
	}
	if len(s.Participants) != 1 || s.ParticipantName(2) != "Speaker 2" {
		t.Fatalf("unexpected participants: %v", s.Participants)
	}
	if s.State != SessionPending || s.Files[0].State != FilePending {
		t.Fatal("expected pending session and files")
	}
}

func TestFromFolderEmpty(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "readme.md", 1)
	if _, err := FromFolder(dir, IngestOptions{}); err == nil {
		t.Fatal("expected error for folder without recordings")
	}
}

func TestClassifyRecordings(t *testing.T) {
	cases := []struct {
		name       string
		files      map[string]int64
		wantMaster string
	}{
		{"convention", map[string]int64{"room.wav": 10, "mic1.wav": 50, "big.wav": 90}, "room.wav"},
		{"largest unidentified", map[string]int64{"a.wav": 10, "b.wav": 90, "mic1.wav": 500}, "b.wav"},
		{"single file", map[string]int64{"mic1.wav": 10}, "mic1.wav"},
		{"all mics", map[string]int64{"mic1.wav": 10, "mic2.wav": 20}, ""},
		{"size tie breaks by name", map[string]int64{"z.wav": 10, "c.wav": 10}, "c.wav"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var files []*AudioFile
			for name, size := range tc.files {
				files = append(files, NewAudioFile("/rec/"+name, size))
			}
			ClassifyRecordings(files)
			masters := 0
			got := ""
			for _, f := range files {
				if f.IsMaster {
					masters++
					got = f.Name
					if f.SpeakerIndex != nil {
						t.Fatalf("master %s should not carry a mic index", f.Name)
					}
				}
			}
			if masters > 1 {
				t.Fatalf("expected at most one master, got %d", masters)
			}
			if got != tc.wantMaster {
				t.Fatalf("master = %q, want %q", got, tc.wantMaster)
			}
		})
	}
}

func TestMicIndex(t *testing.T) {
	cases := map[string]int{
		"ZOOM0001_Tr3.WAV": 3,
		"mic-2.flac":       2,
		"track_10.wav":     10,
		"Ch4.m4a":          4,
	}
	for name, want := range cases {
		got, ok := MicIndex(name)
		if !ok || got != want {
			t.Fatalf("MicIndex(%q) = %d,%v want %d", name, got, ok, want)
		}
	}
	if _, ok := MicIndex("intro2.wav"); ok {
		t.Fatal("intro2 should not parse as a mic index")
	}
}

func TestAudioFileProgressAndFailure(t *testing.T) {
	f := NewAudioFile("/rec/a.wav", 1)
	f.BeginStage(FileConverting)
	f.SetProgress("", 40)
	f.SetProgress("", 20)
	if f.Progress != 40 {
		t.Fatalf("progress regressed to %d", f.Progress)
	}
	f.BeginStage(FileUploading)
	if f.Progress != 0 || f.StepLabel != "Uploading" {
		t.Fatalf("expected reset on new stage, got %d %q", f.Progress, f.StepLabel)
	}
	f.RemoteURL = "https://cdn/x"
	f.SetFailed("boom", true)
	if f.FailedStage != FileUploading || f.State != FileFailed {
		t.Fatalf("unexpected failure state %+v", f)
	}
	f.ResetForRetry()
	if f.State != FilePending || f.ErrorMessage != "" || !f.Retryable || f.RemoteURL == "" {
		t.Fatalf("unexpected reset state %+v", f)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := New("/rec")
	idx := 1
	f := NewAudioFile("/rec/mic1.wav", 1)
	f.SpeakerIndex = &idx
	f.Utterances = []Utterance{{Speaker: "A", Text: "hi"}}
	s.Files = append(s.Files, f)
	s.Participants[1] = "Alex"
	s.Stats = &MergeStats{Speakers: map[string]SpeakerStats{"Alex": {Utterances: 1}}}

	cp := s.Clone()
	cp.Files[0].Utterances[0].Text = "changed"
	*cp.Files[0].SpeakerIndex = 9
	cp.Participants[1] = "Other"
	cp.Stats.Speakers["Alex"] = SpeakerStats{}

	if s.Files[0].Utterances[0].Text != "hi" || *s.Files[0].SpeakerIndex != 1 {
		t.Fatal("file clone shares state")
	}
	if s.Participants[1] != "Alex" || s.Stats.Speakers["Alex"].Utterances != 1 {
		t.Fatal("session clone shares state")
	}
}

func TestHighlightsValidate(t *testing.T) {
	h := &CategorizedHighlights{}
	if err := h.Validate(); err == nil {
		t.Fatal("expected empty highlights to fail validation")
	}
	for _, c := range Categories {
		h.Winners = append(h.Winners, CategoryWinner{Category: c, Highlight: Highlight{Speaker: "A", Quote: "q"}})
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	h.TopQuotes = make([]Highlight, TopListSize+1)
	if err := h.Validate(); err == nil {
		t.Fatal("expected oversized list to fail validation")
	}
}

func TestStateHelpers(t *testing.T) {
	if !FileComplete.IsTerminal() || !FileFailed.IsTerminal() || FileWaitingForSiblings.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
	if FileWaitingForSiblings.IsCollective() || !FileMergingAttribution.IsCollective() {
		t.Fatal("unexpected collective classification")
	}
	if state, ok := ParseFileState(" Awaiting_Transcript "); !ok || state != FileAwaitingTranscript {
		t.Fatalf("ParseFileState = %q,%v", state, ok)
	}
	if _, ok := ParseSessionState("bogus"); ok {
		t.Fatal("expected unknown session state")
	}
	if !SessionAnalyzing.IsActive() || SessionPending.IsActive() {
		t.Fatal("unexpected active classification")
	}
	if FormatTimestamp(3_723_000) != "1:02:03" || FormatTimestamp(65_000) != "1:05" {
		t.Fatal("unexpected timestamp format")
	}
}
