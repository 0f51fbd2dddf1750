// Package api defines the JSON wire types served by the daemon's HTTP API
// and read back by the CLI client.
//
// Converters translate session, workflow and maintenance models into DTOs
// with camelCase keys so consumers never bind to internal structs. Enumerated
// states are exposed as their stored lowercase strings and timestamps use
// RFC3339 with milliseconds. Highlights and merge statistics pass through
// unchanged; their own JSON tags are already the stored document format.
package api
