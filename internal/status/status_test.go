package status

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/loqalabs/loqa-dictate/internal/session"
	"github.com/stretchr/testify/require"
)

func TestLogWritesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewLog(logger)

	l.SetStatus(session.StatusRecording)
	l.SetHint("Press again\nto stop")
	l.SetState(session.Recording)

	out := buf.String()
	require.Contains(t, out, `"text":"Recording..."`)
	require.Contains(t, out, `"text":"Press again to stop"`)
	require.Contains(t, out, `"state":"recording"`)
	require.Contains(t, out, `"component":"status"`)
}

func TestNotifierOnlyOnRecordingAndError(t *testing.T) {
	var mu sync.Mutex
	var messages []string
	n := NewNotifier("loqa-dictate", slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.notify = func(title, message string) error {
		mu.Lock()
		messages = append(messages, title+": "+message)
		mu.Unlock()
		return nil
	}

	for _, s := range []session.State{session.Ready, session.Recording, session.Transcribing, session.Error} {
		n.SetState(s)
	}
	n.Wait()

	require.ElementsMatch(t, []string{
		"loqa-dictate: Recording started",
		"loqa-dictate: Transcription failed",
	}, messages)
}

type countingSink struct{ status, hint, state int }

func (c *countingSink) SetStatus(string)       { c.status++ }
func (c *countingSink) SetHint(string)         { c.hint++ }
func (c *countingSink) SetState(session.State) { c.state++ }

func TestMultiFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := Multi{a, b}
	m.SetStatus("x")
	m.SetHint("y")
	m.SetState(session.Ready)
	require.Equal(t, countingSink{1, 1, 1}, *a)
	require.Equal(t, countingSink{1, 1, 1}, *b)
}
