package session

import (
	"maps"
	"sort"
)

// MergeStrategy names how utterances were attributed to speakers.
type MergeStrategy string

const (
	// StrategyMasterOverlap attributes master utterances using per-mic overlap.
	StrategyMasterOverlap MergeStrategy = "master_overlap"
	// StrategyMasterDiarization relies only on diarization labels on the master.
	StrategyMasterDiarization MergeStrategy = "master_diarization"
	// StrategyInterleave merges per-mic transcripts by start time.
	StrategyInterleave MergeStrategy = "interleave"
)

// SpeakerStats aggregates one participant's contribution.
type SpeakerStats struct {
	Utterances int   `json:"utterances"`
	Words      int   `json:"words"`
	SpeakingMs int64 `json:"speaking_ms"`
}

// MergeStats is returned by attribution and persisted with the session.
// AttributedByOverlap counts utterances placed by microphone evidence, either
// overlap with a master utterance or the microphone's own track.
type MergeStats struct {
	Strategy                MergeStrategy           `json:"strategy"`
	TotalUtterances         int                     `json:"total_utterances"`
	AttributedByOverlap     int                     `json:"attributed_by_overlap"`
	AttributedByDiarization int                     `json:"attributed_by_diarization"`
	Unattributed            int                     `json:"unattributed"`
	DurationMs              int64                   `json:"duration_ms"`
	Speakers                map[string]SpeakerStats `json:"speakers"`
}

// Clone returns a deep copy.
func (m MergeStats) Clone() MergeStats {
	m.Speakers = maps.Clone(m.Speakers)
	return m
}

// SpeakerNames returns speakers sorted by speaking time, longest first.
func (m MergeStats) SpeakerNames() []string {
	names := make([]string, 0, len(m.Speakers))
	for name := range m.Speakers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := m.Speakers[names[i]], m.Speakers[names[j]]
		if a.SpeakingMs != b.SpeakingMs {
			return a.SpeakingMs > b.SpeakingMs
		}
		return names[i] < names[j]
	})
	return names
}
