package attribution

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"roundtable/internal/session"
)

// MarkdownName is the merged transcript document written under the session's
// transcript directory.
const MarkdownName = "session.md"

// FormatTranscript renders utterances as "Name [M:SS]: text" lines.
func FormatTranscript(utterances []session.Utterance) string {
	var b strings.Builder
	for _, u := range utterances {
		fmt.Fprintf(&b, "%s [%s]: %s\n", u.Speaker, session.FormatTimestamp(u.Start), strings.TrimSpace(u.Text))
	}
	return b.String()
}

// Apply stores the merge output on the session. The master transcript, or
// each microphone transcript when there is no master, is rewritten with
// resolved speaker names.
func Apply(s *session.Session, result Result) {
	stats := result.Stats.Clone()
	s.Stats = &stats
	if master := s.Master(); master != nil {
		master.Utterances = result.Utterances
		master.TranscriptText = result.Text
		return
	}
	for _, f := range s.Files {
		var own []session.Utterance
		for _, u := range utterancesOf(f) {
			if f.SpeakerIndex != nil {
				u.Speaker = s.ParticipantName(*f.SpeakerIndex)
			}
			own = append(own, u)
		}
		if len(own) > 0 {
			f.Utterances = own
			f.TranscriptText = FormatTranscript(own)
		}
	}
}

// RenderMarkdown produces the speaker-turn document for a merged session.
func RenderMarkdown(s *session.Session, result Result) string {
	var b strings.Builder
	title := strings.TrimSpace(s.SubjectTitle)
	if title == "" {
		title = filepath.Base(s.FolderPath)
	}
	b.WriteString("# " + title + "\n\n")
	if !s.RecordingDate.IsZero() {
		fmt.Fprintf(&b, "Recorded %s\n\n", s.RecordingDate.Format("2006-01-02"))
	}
	if names := result.Stats.SpeakerNames(); len(names) > 0 {
		b.WriteString("| Speaker | Turns | Words | Time |\n|---|---|---|---|\n")
		for _, name := range names {
			st := result.Stats.Speakers[name]
			fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", name, st.Utterances, st.Words, session.FormatTimestamp(st.SpeakingMs))
		}
		b.WriteString("\n")
	}
	previous := ""
	for _, u := range result.Utterances {
		if u.Speaker != previous {
			fmt.Fprintf(&b, "\n**%s** [%s]\n\n", u.Speaker, session.FormatTimestamp(u.Start))
			previous = u.Speaker
		}
		b.WriteString(strings.TrimSpace(u.Text) + "\n")
	}
	return b.String()
}

// WriteMarkdown writes RenderMarkdown output to the session transcript
// directory and returns the path.
func WriteMarkdown(s *session.Session, result Result) (string, error) {
	dir := s.TranscriptDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(dir, MarkdownName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(RenderMarkdown(s, result)), 0o644); err != nil {
		return "", fmt.Errorf("write transcript markdown: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize transcript markdown: %w", err)
	}
	return path, nil
}
