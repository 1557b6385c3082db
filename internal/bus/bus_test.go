package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/natsserver"
	"github.com/loqalabs/loqa-dictate/internal/protocol"
	"github.com/loqalabs/loqa-dictate/internal/session"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connectEmbedded(t *testing.T) *Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, newLogger())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	client, err := Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.True(t, client.Healthy())
	return client
}

type fakeController struct {
	mu      sync.Mutex
	actions []string
	state   session.State
	err     error
}

func (f *fakeController) record(action string, next session.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	if f.err != nil {
		return f.err
	}
	f.state = next
	return nil
}

func (f *fakeController) Toggle(context.Context) error { return f.record("toggle", session.Recording) }
func (f *fakeController) StartRecording(context.Context) error {
	return f.record("start", session.Recording)
}
func (f *fakeController) StopRecording(context.Context) error {
	return f.record("stop", session.Transcribing)
}
func (f *fakeController) Recover(context.Context) error { return f.record("recover", session.Ready) }

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Snapshot{State: f.state, StateName: f.state.String()}
}

func request(t *testing.T, client *Client, action string) protocol.ControlReply {
	t.Helper()
	data, err := json.Marshal(protocol.Control{Action: action})
	require.NoError(t, err)
	msg, err := client.Conn().Request(protocol.SubjectControl, data, 2*time.Second)
	require.NoError(t, err)
	var reply protocol.ControlReply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	return reply
}

func TestControlDispatchesActions(t *testing.T) {
	client := connectEmbedded(t)
	ctrl := &fakeController{}
	sub, err := ServeControl(context.Background(), client, ctrl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	reply := request(t, client, protocol.ActionToggle)
	require.True(t, reply.OK)
	require.Equal(t, "recording", reply.State)

	reply = request(t, client, protocol.ActionStop)
	require.True(t, reply.OK)
	require.Equal(t, "transcribing", reply.State)

	reply = request(t, client, protocol.ActionStatus)
	require.True(t, reply.OK)

	reply = request(t, client, "explode")
	require.False(t, reply.OK)
	require.Contains(t, reply.Error, "unknown action")

	ctrl.mu.Lock()
	require.Equal(t, []string{"toggle", "stop"}, ctrl.actions)
	ctrl.mu.Unlock()
}

func TestControlReportsControllerErrors(t *testing.T) {
	client := connectEmbedded(t)
	ctrl := &fakeController{err: errors.New("session coordinator closed")}
	sub, err := ServeControl(context.Background(), client, ctrl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	reply := request(t, client, protocol.ActionStart)
	require.False(t, reply.OK)
	require.Equal(t, "session coordinator closed", reply.Error)
}

func TestPublisherBroadcastsStatusAndTranscript(t *testing.T) {
	client := connectEmbedded(t)

	statuses := make(chan *nats.Msg, 4)
	transcripts := make(chan *nats.Msg, 4)
	s1, err := client.Conn().ChanSubscribe(protocol.SubjectStatus, statuses)
	require.NoError(t, err)
	s2, err := client.Conn().ChanSubscribe(protocol.SubjectTranscript, transcripts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s1.Unsubscribe(); _ = s2.Unsubscribe() })
	require.NoError(t, client.Conn().Flush())

	pub := NewPublisher(client)
	at := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	pub.OnTransition(context.Background(), session.Transition{
		SessionID: "abc", From: session.Transcribing, To: session.Ready,
		Reason: "transcribed", Status: session.StatusReady, Text: "dictated text",
		Samples: 32000, Latency: 400 * time.Millisecond, At: at,
	})

	select {
	case msg := <-statuses:
		var st protocol.Status
		require.NoError(t, json.Unmarshal(msg.Data, &st))
		require.Equal(t, "ready", st.State)
		require.Equal(t, "abc", st.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}
	select {
	case msg := <-transcripts:
		var tr protocol.Transcript
		require.NoError(t, json.Unmarshal(msg.Data, &tr))
		require.Equal(t, "dictated text", tr.Text)
		require.EqualValues(t, 400, tr.LatencyMS)
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript published")
	}
}
