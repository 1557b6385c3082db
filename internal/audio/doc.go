// Package audio provides the bounded capture sink, capture backends and WAV helpers.
package audio
