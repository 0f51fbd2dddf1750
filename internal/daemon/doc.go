// Package daemon coordinates the long-running roundtable process.
//
// It wires configuration, session storage, the workflow manager, and the
// maintenance service into a single lifecycle with flock-based locking so
// only one daemon works a data directory at a time. The daemon serves the
// HTTP API used by the CLI to queue folders, inspect sessions, and trigger
// repairs; the individual processing steps live in their own packages.
package daemon
