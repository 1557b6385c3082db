package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/eventstore"
	"github.com/loqalabs/loqa-dictate/internal/session"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
	snap  session.Snapshot
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Toggle(context.Context) error         { return f.record("toggle") }
func (f *fakeController) StartRecording(context.Context) error { return f.record("start") }
func (f *fakeController) StopRecording(context.Context) error  { return f.record("stop") }
func (f *fakeController) Recover(context.Context) error        { return f.record("recover") }
func (f *fakeController) Snapshot() session.Snapshot           { return f.snap }

type fakeHistory struct {
	limit    int
	sessions []eventstore.SessionRecord
}

func (f *fakeHistory) RecentSessions(_ context.Context, limit int) ([]eventstore.SessionRecord, error) {
	f.limit = limit
	return f.sessions, nil
}

func newAPI(ctrl session.Controller, ready bool) (*api, *fakeHistory) {
	h := &fakeHistory{}
	return &api{
		ctrl:    ctrl,
		history: h,
		ready:   func() bool { return ready },
		logger:  newLogger(),
	}, h
}

func TestHealthAndReady(t *testing.T) {
	a, _ := newAPI(&fakeController{}, false)
	mux := a.routes(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActionsDispatchToController(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{StateName: "recording", Status: session.StatusRecording}}
	a, _ := newAPI(ctrl, true)
	mux := a.routes(nil)

	for _, path := range []string{"/v1/toggle", "/v1/start", "/v1/stop", "/v1/recover"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)

		var snap session.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		require.Equal(t, "recording", snap.StateName)
	}
	require.Equal(t, []string{"toggle", "start", "stop", "recover"}, ctrl.calls)
}

func TestActionRequiresPost(t *testing.T) {
	ctrl := &fakeController{}
	a, _ := newAPI(ctrl, true)

	rec := httptest.NewRecorder()
	a.routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/toggle", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Empty(t, ctrl.calls)
}

func TestActionErrorIsUnavailable(t *testing.T) {
	ctrl := &fakeController{err: session.ErrClosed}
	a, _ := newAPI(ctrl, true)

	rec := httptest.NewRecorder()
	a.routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/start", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), session.ErrClosed.Error())
}

func TestHistoryPassesLimit(t *testing.T) {
	a, h := newAPI(&fakeController{}, true)
	h.sessions = []eventstore.SessionRecord{{SessionID: "abc", Outcome: "transcribed", Transcript: "hi"}}

	rec := httptest.NewRecorder()
	a.routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, h.limit)

	var got []eventstore.SessionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "hi", got[0].Transcript)
}

func TestHistoryEmptyIsArray(t *testing.T) {
	a, _ := newAPI(&fakeController{}, true)
	rec := httptest.NewRecorder()
	a.routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestSyntheticClipFromTone(t *testing.T) {
	clip, err := syntheticClip(config.AudioConfig{SampleRate: 16000, ToneMS: 500})
	require.NoError(t, err)
	require.Len(t, clip, 8000)
}

func TestSyntheticClipResamplesSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.WriteWAV(f, audio.Tone(8000, 440, 0.3, 8000), 8000))
	require.NoError(t, f.Close())

	clip, err := syntheticClip(config.AudioConfig{SampleRate: 16000, SourceFile: path})
	require.NoError(t, err)
	require.InDelta(t, 16000, len(clip), 2)
}

func TestNewCaptureRejectsUnknownBackend(t *testing.T) {
	_, _, err := newCapture(config.AudioConfig{Backend: "alsa", SampleRate: 16000})
	require.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRuntimeEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Port = 0
	cfg.UI.Enabled = false
	cfg.Output.Clipboard = false
	cfg.Audio.ToneMS = 300
	cfg.Recorder.SilenceDurationMS = 200

	stdout := &syncBuffer{}
	rt := New(cfg, newLogger(), WithStdout(stdout))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Start(ctx) }()

	require.Eventually(t, rt.Ready, 5*time.Second, 10*time.Millisecond)
	base := "http://" + rt.Addr()

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/v1/toggle", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the tone ends, silence stops the recording and the mock engine answers
	var snap session.Snapshot
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		snap = session.Snapshot{}
		return json.NewDecoder(resp.Body).Decode(&snap) == nil && snap.LastText != ""
	}, 10*time.Second, 20*time.Millisecond)
	require.Equal(t, "ready", snap.StateName)
	require.Contains(t, snap.LastText, "mock transcript")
	require.Contains(t, stdout.String(), "=== Transcription Result ===")

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "dictate_sessions_started")

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("runtime returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not stop")
	}
	require.False(t, rt.Ready())
}
