package stt

import (
	"context"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Options tune a single transcription call.
type Options struct {
	Language    string
	NumThreads  int
	Translate   bool
	Temperature float64
}

// Recognizer abstracts STT backends. Transcribe is synchronous and may take
// seconds; callers run it off the UI path.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int, opts Options) (TranscriptResult, error)
	// Loaded reports whether the backend is ready to accept work.
	Loaded() bool
}
