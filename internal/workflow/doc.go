// Package workflow runs queued sessions inside the daemon.
//
// The Manager polls the store for Pending sessions and for Transcribing
// sessions that a stuck-session repair handed back, runs them one at a time
// through the orchestrator, and stamps a heartbeat while each run is in
// flight. A second loop runs the stuck-session scan on the maintenance
// interval; the scan consults Active so sessions owned by this process are
// never touched. Outcomes are pushed through the notifications service.
package workflow
