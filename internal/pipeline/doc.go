// Package pipeline drives a session's recordings from raw audio to analyzed
// highlights.
//
// Each AudioFile moves through an explicit transition table (transitions.go):
// a handler performs one unit of work for the current state and returns the
// next state. FileDriver runs that loop for one file until the file fails or
// parks at WaitingForSiblings, trapping errors and panics so nothing escapes
// into sibling files.
//
// Orchestrator.RunEnhanced fans out one driver per file, waits for all of
// them, and then holds the session at the barrier. The barrier releases only
// when every file is waiting; if any file failed and the rest are waiting,
// the session aborts without running collective stages. After release the
// orchestrator merges speaker attribution and runs analysis, persisting the
// session at each phase boundary.
//
// Files never share mutable state while drivers run. Progress reaches the
// orchestrator as snapshots, and only the orchestrator writes to the store.
package pipeline
