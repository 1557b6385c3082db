//go:build !whisper

package stt

import (
	"errors"

	"github.com/loqalabs/loqa-dictate/internal/config"
)

// NewWhisperRecognizer is unavailable without the whisper build tag.
func NewWhisperRecognizer(config.STTConfig) (Recognizer, error) {
	return nil, errors.New("whisper.cpp support not compiled in (build with -tags whisper)")
}
