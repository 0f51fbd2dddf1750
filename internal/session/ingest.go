package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoRecordings is returned when a folder contains no candidate audio files.
var ErrNoRecordings = errors.New("no recordings found")

// IngestOptions carries operator-supplied metadata for a new session.
type IngestOptions struct {
	SubjectTitle  string
	RecordingDate time.Time
	Participants  map[int]string
}

var (
	sidecarExtensions = map[string]struct{}{
		".json": {}, ".txt": {}, ".md": {}, ".srt": {}, ".vtt": {}, ".log": {},
	}
	micPattern      = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:mic|tr|track|ch|channel)[ _-]?(\d{1,2})(?:[^0-9]|$)`)
	masterPattern   = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:master|mix|mixdown|combined|room|lr)(?:[^a-z]|$)`)
	folderDateShape = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[ _-]+(.+)$`)
)

// FromFolder scans folder into a new pending session. Hidden files, sidecar
// documents and the transcripts output directory are skipped. Extension
// filtering is left to the pipeline so unsupported files surface as failures.
func FromFolder(folder string, opts IngestOptions) (*Session, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolve folder: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}

	s := New(abs)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if _, skip := sidecarExtensions[strings.ToLower(filepath.Ext(name))]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		s.Files = append(s.Files, NewAudioFile(filepath.Join(abs, name), info.Size()))
	}
	if len(s.Files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRecordings, abs)
	}
	sort.Slice(s.Files, func(i, j int) bool { return s.Files[i].Name < s.Files[j].Name })

	ClassifyRecordings(s.Files)

	s.SubjectTitle = strings.TrimSpace(opts.SubjectTitle)
	s.RecordingDate = opts.RecordingDate
	if s.SubjectTitle == "" || s.RecordingDate.IsZero() {
		date, subject := parseFolderName(filepath.Base(abs))
		if s.SubjectTitle == "" {
			s.SubjectTitle = subject
		}
		if s.RecordingDate.IsZero() {
			s.RecordingDate = date
		}
	}
	for idx, name := range opts.Participants {
		if name = strings.TrimSpace(name); name != "" {
			s.Participants[idx] = name
		}
	}
	return s, nil
}

// MicIndex extracts a microphone index from a file name such as
// "ZOOM0001_Tr2.WAV" or "mic-3.flac".
func MicIndex(name string) (int, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	m := micPattern.FindStringSubmatch(stem)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// LooksLikeMaster reports whether name follows a combined-recording convention.
func LooksLikeMaster(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return masterPattern.MatchString(stem)
}

// ClassifyRecordings assigns microphone indexes and marks the master
// recording. A file named by convention wins; otherwise the largest file
// without a microphone index is chosen. A single file is always the master.
// When every file in a multi-file session carries a microphone index no
// master is marked and attribution interleaves the per-mic transcripts.
func ClassifyRecordings(files []*AudioFile) {
	var named, unidentified []*AudioFile
	for _, f := range files {
		f.IsMaster = false
		f.SpeakerIndex = nil
		if LooksLikeMaster(f.Name) {
			named = append(named, f)
			continue
		}
		if idx, ok := MicIndex(f.Name); ok {
			f.SpeakerIndex = &idx
			continue
		}
		unidentified = append(unidentified, f)
	}

	var master *AudioFile
	switch {
	case len(named) > 0:
		master = largest(named)
	case len(unidentified) > 0:
		master = largest(unidentified)
	case len(files) == 1:
		master = files[0]
		master.SpeakerIndex = nil
	}
	if master != nil {
		master.IsMaster = true
	}
}

func largest(files []*AudioFile) *AudioFile {
	best := files[0]
	for _, f := range files[1:] {
		if f.SizeBytes > best.SizeBytes || (f.SizeBytes == best.SizeBytes && f.Name < best.Name) {
			best = f
		}
	}
	return best
}

func parseFolderName(base string) (time.Time, string) {
	m := folderDateShape.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
	}
	date, err := time.Parse(time.DateOnly, m[1])
	if err != nil {
		return time.Time{}, strings.TrimSpace(base)
	}
	return date, strings.TrimSpace(strings.ReplaceAll(m[2], "_", " "))
}
