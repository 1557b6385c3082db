//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/config"
)

const whisperSampleRate = 16000

type whisperRecognizer struct {
	model whisper.Model
	mu    sync.Mutex
}

// NewWhisperRecognizer loads a ggml model through the whisper.cpp bindings.
func NewWhisperRecognizer(cfg config.STTConfig) (Recognizer, error) {
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", cfg.ModelPath, err)
	}
	return &whisperRecognizer{model: model}, nil
}

func (r *whisperRecognizer) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model != nil
}

func (r *whisperRecognizer) Transcribe(ctx context.Context, samples []int16, sampleRate int, opts Options) (TranscriptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return TranscriptResult{}, ErrEngineUnavailable
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("whisper context: %w", err)
	}
	if opts.NumThreads > 0 {
		wctx.SetThreads(uint(opts.NumThreads))
	}
	if opts.Language != "" {
		if err := wctx.SetLanguage(opts.Language); err != nil {
			return TranscriptResult{}, fmt.Errorf("whisper language %q: %w", opts.Language, err)
		}
	}
	wctx.SetTranslate(opts.Translate)
	if opts.Temperature > 0 {
		wctx.SetTemperature(float32(opts.Temperature))
	}

	pcm := audio.Resample(audio.Float32(samples), sampleRate, whisperSampleRate)
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return TranscriptResult{}, &EngineError{Code: -1, Err: err}
	}

	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return TranscriptResult{}, fmt.Errorf("whisper segment: %w", err)
		}
		text.WriteString(segment.Text)
	}
	return TranscriptResult{Text: strings.TrimSpace(text.String())}, nil
}

// Close unloads the model.
func (r *whisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return nil
	}
	err := r.model.Close()
	r.model = nil
	return err
}
