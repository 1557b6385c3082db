package stt

import (
	"context"
	"fmt"
	"time"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, samples []int16, sampleRate int, _ Options) (TranscriptResult, error) {
	select {
	case <-ctx.Done():
		return TranscriptResult{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	seconds := float64(len(samples)) / float64(max(sampleRate, 1))
	return TranscriptResult{
		Text:       fmt.Sprintf("[mock transcript %.2fs]", seconds),
		Confidence: 0,
	}, nil
}

func (m *mockRecognizer) Loaded() bool { return true }
