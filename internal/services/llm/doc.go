// Package llm provides an OpenRouter-compatible chat client used by session
// analysis.
//
// CompleteJSON sends a system and user prompt and returns the JSON payload the
// model produced, wherever the provider put it (message content, streaming
// delta, legacy text, or tool-call arguments). DecodeLLMJSON unmarshals that
// payload, stripping code fences and surrounding prose when needed.
//
// Requests retry on HTTP 408/429/5xx, network timeouts, and empty
// completions (see package retry). When no API key is configured, callers
// should degrade to their own fallback instead of calling the client.
package llm
