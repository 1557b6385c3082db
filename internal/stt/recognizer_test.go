package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExecRecognizerParsesOutput(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `echo "$@" > `+argsFile+`
echo '{"text":"hello from exec","confidence":0.8}'`)

	rec, err := NewExecRecognizer(config.STTConfig{Command: script, ModelPath: "/models/base.bin"})
	require.NoError(t, err)
	require.True(t, rec.Loaded())

	out, err := rec.Transcribe(context.Background(), []int16{1, 2, 3}, 16000, Options{Language: "en", NumThreads: 2, Translate: true})
	require.NoError(t, err)
	require.Equal(t, "hello from exec", out.Text)
	require.InDelta(t, 0.8, out.Confidence, 1e-9)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	for _, want := range []string{"--audio", "--model /models/base.bin", "--language en", "--threads 2", "--translate"} {
		require.Contains(t, string(args), want)
	}
}

func TestExecRecognizerExitCode(t *testing.T) {
	script := writeScript(t, `echo "model missing" >&2
exit 3`)
	rec, err := NewExecRecognizer(config.STTConfig{Command: script})
	require.NoError(t, err)

	_, err = rec.Transcribe(context.Background(), []int16{1}, 16000, Options{})
	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	require.Equal(t, 3, engineErr.Code)
	require.Contains(t, err.Error(), "model missing")
	require.Equal(t, "engine_error", Kind(err))
}

func TestExecRecognizerMissingBinaryNotLoaded(t *testing.T) {
	rec, err := NewExecRecognizer(config.STTConfig{Command: "/nonexistent/whisper-cli --fast"})
	require.NoError(t, err)
	require.False(t, rec.Loaded())
}

func TestExecRecognizerRejectsEmptyCommand(t *testing.T) {
	_, err := NewExecRecognizer(config.STTConfig{Command: "  "})
	require.Error(t, err)
}

func TestOpenAIRecognizer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "remote words"})
	}))
	defer srv.Close()

	rec := NewOpenAIRecognizer(config.STTConfig{OpenAIAPIKey: "sk-test", OpenAIBaseURL: srv.URL + "/v1"})
	require.True(t, rec.Loaded())

	out, err := rec.Transcribe(context.Background(), []int16{1, 2, 3}, 16000, Options{Language: "auto"})
	require.NoError(t, err)
	require.Equal(t, "remote words", out.Text)
	require.Equal(t, "/v1/audio/transcriptions", gotPath)
}

func TestOpenAIRecognizerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	rec := NewOpenAIRecognizer(config.STTConfig{OpenAIAPIKey: "sk-test", OpenAIBaseURL: srv.URL + "/v1"})
	_, err := rec.Transcribe(context.Background(), []int16{1}, 16000, Options{})
	require.Error(t, err)
	require.Equal(t, "engine_error", Kind(err))
}

func TestOpenAIRecognizerWithoutKeyNotLoaded(t *testing.T) {
	require.False(t, NewOpenAIRecognizer(config.STTConfig{}).Loaded())
}

func TestNewSelectsBackend(t *testing.T) {
	rec, err := New(config.STTConfig{Mode: "mock"})
	require.NoError(t, err)
	require.True(t, rec.Loaded())

	_, err = New(config.STTConfig{Mode: "vosk"})
	require.ErrorContains(t, err, "unknown stt mode")
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.STTConfig{Language: "de", NumThreads: 8, Translate: true, Temperature: 0.2})
	require.Equal(t, Options{Language: "de", NumThreads: 8, Translate: true, Temperature: 0.2}, opts)
}
