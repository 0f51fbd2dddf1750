// Package config loads, normalizes, and validates Roundtable configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ASSEMBLYAI_API_KEY and OPENROUTER_API_KEY. The Config type centralizes every
// knob the daemon and CLI need so provider credentials and pipeline timing are
// discovered in one pass.
package config
