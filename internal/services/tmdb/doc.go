// Package tmdb looks up the film a session discussed so analysis prompts can
// include its year and synopsis. Only movie search is used.
package tmdb
