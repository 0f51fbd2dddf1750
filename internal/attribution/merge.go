package attribution

import (
	"errors"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"roundtable/internal/session"
)

// ErrNoUtterances is returned when no file produced any transcript content.
var ErrNoUtterances = errors.New("attribution: no utterances to merge")

// Result is the merged transcript and its statistics.
type Result struct {
	Utterances []session.Utterance
	Text       string
	Stats      session.MergeStats
}

type micTrack struct {
	index      int
	name       string
	utterances []session.Utterance
}

// Merge attributes the session's transcripts to participants.
func Merge(s *session.Session) (Result, error) {
	if s == nil {
		return Result{}, errors.New("attribution: nil session")
	}
	master := s.Master()
	var mics []micTrack
	var loose []*session.AudioFile
	for _, f := range s.Files {
		if f.IsMaster {
			continue
		}
		if f.SpeakerIndex == nil {
			loose = append(loose, f)
			continue
		}
		mics = append(mics, micTrack{
			index:      *f.SpeakerIndex,
			name:       s.ParticipantName(*f.SpeakerIndex),
			utterances: utterancesOf(f),
		})
	}
	sort.SliceStable(mics, func(i, j int) bool { return mics[i].index < mics[j].index })

	var (
		merged []session.Utterance
		stats  session.MergeStats
	)
	switch {
	case master != nil && len(mics) > 0:
		stats.Strategy = session.StrategyMasterOverlap
		merged = attributeMaster(s, utterancesOf(master), mics, &stats)
	case master != nil:
		stats.Strategy = session.StrategyMasterDiarization
		merged = attributeMaster(s, utterancesOf(master), nil, &stats)
	default:
		stats.Strategy = session.StrategyInterleave
		merged = interleave(mics, loose, &stats)
	}
	if len(merged) == 0 {
		return Result{}, ErrNoUtterances
	}

	stats.TotalUtterances = len(merged)
	stats.Speakers = map[string]session.SpeakerStats{}
	for _, u := range merged {
		entry := stats.Speakers[u.Speaker]
		entry.Utterances++
		entry.Words += len(strings.Fields(u.Text))
		entry.SpeakingMs += u.Duration()
		stats.Speakers[u.Speaker] = entry
		stats.DurationMs = max(stats.DurationMs, u.End)
	}
	return Result{Utterances: merged, Text: FormatTranscript(merged), Stats: stats}, nil
}

// utterancesOf returns a file's utterances, or a single utterance spanning the
// recording when the provider returned text without speaker turns.
func utterancesOf(f *session.AudioFile) []session.Utterance {
	if f == nil {
		return nil
	}
	if len(f.Utterances) > 0 {
		return slices.Clone(f.Utterances)
	}
	text := strings.TrimSpace(f.TranscriptText)
	if text == "" {
		return nil
	}
	return []session.Utterance{{Text: text, End: int64(f.DurationSeconds * 1000)}}
}

func attributeMaster(s *session.Session, master []session.Utterance, mics []micTrack, stats *session.MergeStats) []session.Utterance {
	out := make([]session.Utterance, 0, len(master))
	resolved := make([]bool, 0, len(master))
	votes := map[string]map[string]int{}
	for _, u := range master {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		label := strings.TrimSpace(u.Speaker)
		name, ok := bestOverlap(u, mics)
		if ok {
			if label != "" {
				if votes[label] == nil {
					votes[label] = map[string]int{}
				}
				votes[label][name]++
			}
			u.Speaker = name
			stats.AttributedByOverlap++
		}
		out = append(out, u)
		resolved = append(resolved, ok)
	}

	labels := newLabelMap(s, votes)
	for i := range out {
		if resolved[i] {
			continue
		}
		labels.observe(out[i].Speaker)
	}
	for i := range out {
		if resolved[i] {
			continue
		}
		if name, ok := labels.resolve(out[i].Speaker); ok {
			out[i].Speaker = name
			stats.AttributedByDiarization++
		} else {
			out[i].Speaker = unknownSpeaker(out[i].Speaker)
			stats.Unattributed++
		}
	}
	return out
}

// bestOverlap picks the microphone with the strictly longest total overlap.
func bestOverlap(u session.Utterance, mics []micTrack) (string, bool) {
	var (
		best   string
		bestMs int64
		tied   bool
	)
	for _, mic := range mics {
		var total int64
		for _, m := range mic.utterances {
			total += overlap(u, m)
		}
		switch {
		case total > bestMs:
			best, bestMs, tied = mic.name, total, false
		case total == bestMs && total > 0:
			tied = true
		}
	}
	if bestMs == 0 || tied {
		return "", false
	}
	return best, true
}

func overlap(a, b session.Utterance) int64 {
	start := max(a.Start, b.Start)
	end := min(a.End, b.End)
	if end <= start {
		return 0
	}
	return end - start
}

func interleave(mics []micTrack, loose []*session.AudioFile, stats *session.MergeStats) []session.Utterance {
	var out []session.Utterance
	for _, mic := range mics {
		for _, u := range mic.utterances {
			if strings.TrimSpace(u.Text) == "" {
				continue
			}
			u.Speaker = mic.name
			out = append(out, u)
			stats.AttributedByOverlap++
		}
	}
	for _, f := range loose {
		name := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
		for _, u := range utterancesOf(f) {
			if strings.TrimSpace(u.Text) == "" {
				continue
			}
			u.Speaker = name
			out = append(out, u)
			stats.Unattributed++
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// labelMap assigns diarization labels to participants. A label that
// overlapped a microphone keeps that microphone's participant; the remaining
// labels take the unclaimed participants in order of first appearance.
type labelMap struct {
	free     []string
	assigned map[string]string
}

func newLabelMap(s *session.Session, votes map[string]map[string]int) *labelMap {
	indexes := make([]int, 0, len(s.Participants))
	for idx := range s.Participants {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	m := &labelMap{assigned: map[string]string{}}
	claimed := map[string]bool{}
	for label, counts := range votes {
		best, bestCount := "", 0
		for name, count := range counts {
			if count > bestCount || (count == bestCount && name < best) {
				best, bestCount = name, count
			}
		}
		m.assigned[label] = best
		claimed[best] = true
	}
	for _, idx := range indexes {
		if name := s.ParticipantName(idx); !claimed[name] {
			m.free = append(m.free, name)
		}
	}
	return m
}

// observe claims the next free participant for a label seen for the first time.
func (m *labelMap) observe(label string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	if _, ok := m.assigned[label]; ok || len(m.free) == 0 {
		return
	}
	m.assigned[label] = m.free[0]
	m.free = m.free[1:]
}

func (m *labelMap) resolve(label string) (string, bool) {
	name, ok := m.assigned[strings.TrimSpace(label)]
	return name, ok
}

func unknownSpeaker(label string) string {
	if label = strings.TrimSpace(label); label != "" {
		return "Speaker " + label
	}
	return "Unknown"
}
