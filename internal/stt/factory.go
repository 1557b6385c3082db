package stt

import (
	"fmt"

	"github.com/loqalabs/loqa-dictate/internal/config"
)

// New builds the recognizer selected by cfg.Mode.
func New(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "openai":
		return NewOpenAIRecognizer(cfg), nil
	case "whisper":
		return NewWhisperRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown stt mode %q (supported: mock, exec, openai, whisper)", cfg.Mode)
	}
}

// OptionsFromConfig maps configuration onto per-call options.
func OptionsFromConfig(cfg config.STTConfig) Options {
	return Options{
		Language:    cfg.Language,
		NumThreads:  cfg.NumThreads,
		Translate:   cfg.Translate,
		Temperature: cfg.Temperature,
	}
}
