// Package attribution merges per-file transcripts into one speaker-attributed
// session transcript.
//
// With a master recording and microphone files, every master utterance goes
// to the microphone whose own utterances overlap it the longest. When no
// microphone overlaps, or two tie, the master's diarization label decides:
// labels map to participants in order of first appearance. Without
// microphones the diarization labels are the only signal. Without a master,
// the microphone transcripts are interleaved by start time.
//
// Merge is pure. Apply writes the result back into the session and
// RenderMarkdown produces the readable speaker-turn document.
package attribution
