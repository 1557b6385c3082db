package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

type openAIRecognizer struct {
	client *openai.Client
	model  string
	loaded bool
	mu     sync.Mutex
}

// NewOpenAIRecognizer sends recordings to an OpenAI compatible
// /audio/transcriptions endpoint.
func NewOpenAIRecognizer(cfg config.STTConfig) Recognizer {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	model := cfg.OpenAIModel
	if model == "" {
		model = openai.Whisper1
	}
	return &openAIRecognizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		loaded: cfg.OpenAIAPIKey != "",
	}
}

func (r *openAIRecognizer) Loaded() bool { return r.loaded }

func (r *openAIRecognizer) Transcribe(ctx context.Context, samples []int16, sampleRate int, opts Options) (TranscriptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := audio.WriteTempWAV(samples, sampleRate, "loqa_dictate_*.wav")
	if err != nil {
		return TranscriptResult{}, err
	}
	defer os.Remove(path)

	req := openai.AudioRequest{
		Model:       r.model,
		FilePath:    path,
		Temperature: float32(opts.Temperature),
		Format:      openai.AudioResponseFormatJSON,
	}
	if opts.Language != "" && opts.Language != "auto" {
		req.Language = opts.Language
	}

	var resp openai.AudioResponse
	if opts.Translate {
		resp, err = r.client.CreateTranslation(ctx, req)
	} else {
		resp, err = r.client.CreateTranscription(ctx, req)
	}
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return TranscriptResult{}, &EngineError{Code: apiErr.HTTPStatusCode, Err: err}
		}
		return TranscriptResult{}, fmt.Errorf("openai transcription: %w", err)
	}
	return TranscriptResult{Text: resp.Text}, nil
}
