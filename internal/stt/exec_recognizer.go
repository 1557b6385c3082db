package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/mattn/go-shellwords"
)

type execRecognizer struct {
	cmd    []string
	cfg    config.STTConfig
	loaded bool
	mu     sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewExecRecognizer runs an external command per transcription. The command
// receives --audio <file.wav> and prints {"text": ..., "confidence": ...}.
func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	_, lookErr := exec.LookPath(args[0])
	return &execRecognizer{cmd: args, cfg: cfg, loaded: lookErr == nil}, nil
}

func (r *execRecognizer) Loaded() bool { return r.loaded }

func (r *execRecognizer) Transcribe(ctx context.Context, samples []int16, sampleRate int, opts Options) (TranscriptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := audio.WriteTempWAV(samples, sampleRate, "loqa_dictate_*.wav")
	if err != nil {
		return TranscriptResult{}, err
	}
	defer os.Remove(path)

	base := r.cmd[0]
	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", path)
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}
	if opts.Language != "" {
		cmdArgs = append(cmdArgs, "--language", opts.Language)
	}
	if opts.NumThreads > 0 {
		cmdArgs = append(cmdArgs, "--threads", strconv.Itoa(opts.NumThreads))
	}
	if opts.Translate {
		cmdArgs = append(cmdArgs, "--translate")
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return TranscriptResult{}, &EngineError{Code: code, Err: fmt.Errorf("stt command failed: %w: %s", err, stderr.String())}
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt response: %w", err)
	}
	return TranscriptResult{Text: resp.Text, Confidence: resp.Confidence}, nil
}
