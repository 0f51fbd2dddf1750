// Command roundtable is the operator CLI. It processes recording folders in
// the foreground, inspects and repairs sessions, and controls roundtabled.
//
// Session commands talk to the daemon when its API answers and fall back to
// the session database otherwise.
package main
