// Package maintenance repairs and inspects persisted sessions.
//
// DetectStuckSessions finds sessions whose processing stopped without
// reaching a terminal state and either returns them to Transcribing, so the
// workflow resumes them from their stored file state, or fails them when no
// transcript was ever downloaded. RecoverFailedFiles, RedownloadTranscripts
// and Diagnose operate on a single session at operator request.
package maintenance
