package stt

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput means the snapshot handed to a task had no samples.
	ErrEmptyInput = errors.New("no audio to transcribe")
	// ErrEngineUnavailable means the recognizer is not loaded.
	ErrEngineUnavailable = errors.New("transcription engine not loaded")
	// ErrEmptyOutput means the engine succeeded but produced no text.
	ErrEmptyOutput = errors.New("transcription produced no text")
	// ErrAlreadyJoined is returned by Task.Wait after the first join.
	ErrAlreadyJoined = errors.New("transcription task already joined")
)

// EngineError is a non-success result from the inference backend.
type EngineError struct {
	Code int
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription engine failed (code %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transcription engine failed (code %d)", e.Code)
}

func (e *EngineError) Unwrap() error { return e.Err }

// InternalFault wraps a panic recovered from a transcription worker.
type InternalFault struct {
	Value any
}

func (f *InternalFault) Error() string {
	return fmt.Sprintf("transcription worker panicked: %v", f.Value)
}

// Kind names the failure class of err for status text and metrics.
func Kind(err error) string {
	var fault *InternalFault
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrEngineUnavailable):
		return "engine_unavailable"
	case errors.Is(err, ErrEmptyOutput):
		return "empty_output"
	case errors.As(err, &fault):
		return "internal_fault"
	default:
		return "engine_error"
	}
}
