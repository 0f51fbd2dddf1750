// Package daemonctl lets CLI commands control a roundtabled process: launch
// it, stop it through its pid file, and call its HTTP API.
package daemonctl
