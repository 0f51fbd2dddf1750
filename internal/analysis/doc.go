// Package analysis turns a merged session transcript into categorized
// highlights.
//
// Service.Analyze never fails the session. When no provider is configured, or
// the provider errors or returns an unusable document, it substitutes a
// deterministic fallback whose entries are labelled "analysis unavailable".
// The result is always either a complete provider document or a complete
// fallback, never a mix.
package analysis
