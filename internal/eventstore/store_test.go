package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/session"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func cycle(id string, at time.Time, text string) []session.Transition {
	return []session.Transition{
		{SessionID: id, From: session.Ready, To: session.Recording, Reason: "requested", Status: session.StatusRecording, At: at},
		{SessionID: id, From: session.Recording, To: session.Transcribing, Reason: "silence", Status: session.StatusTranscribing, Samples: 16000, At: at.Add(time.Second)},
		{SessionID: id, From: session.Transcribing, To: session.Ready, Reason: "transcribed", Status: session.StatusReady, Text: text, Latency: 250 * time.Millisecond, At: at.Add(2 * time.Second)},
	}
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	for _, tr := range cycle("s-1", time.Now(), "hello") {
		if err := es.Record(ctx, tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	sessions, err := es.RecentSessions(ctx, 10)
	if err != nil || len(sessions) != 0 {
		t.Fatalf("expected nothing stored, got %v (%v)", sessions, err)
	}
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "persistent"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, tr := range cycle("session-123", start, "hello world") {
		es.OnTransition(ctx, tr)
	}

	events, err := es.ListSessionEvents(ctx, "session-123", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].Reason != "silence" || events[1].Samples != 16000 {
		t.Fatalf("unexpected stop event: %+v", events[1])
	}
	if events[2].To != "ready" || events[2].LatencyMS != 250 {
		t.Fatalf("unexpected final event: %+v", events[2])
	}

	sessions, err := es.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("recent sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Outcome != "transcribed" || sessions[0].Transcript != "hello world" {
		t.Fatalf("unexpected session summary: %+v", sessions[0])
	}
}

func TestRecordFailureOutcome(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "persistent"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trs := cycle("s-err", at, "")[:2]
	trs = append(trs, session.Transition{SessionID: "s-err", From: session.Transcribing, To: session.Error, Reason: "engine_error", Err: errors.New("exit 3"), At: at.Add(3 * time.Second)})
	for _, tr := range trs {
		if err := es.Record(ctx, tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	sessions, err := es.RecentSessions(ctx, 10)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("recent sessions: %v %v", sessions, err)
	}
	if sessions[0].Outcome != "engine_error" || sessions[0].Transcript != "" {
		t.Fatalf("unexpected session summary: %+v", sessions[0])
	}
	events, _ := es.ListSessionEvents(ctx, "s-err", 10)
	if events[len(events)-1].Error != "exit 3" {
		t.Fatalf("expected error text journaled, got %+v", events[len(events)-1])
	}
}

func TestSessionModeRemovesFileOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	es, err := Open(context.Background(), config.EventStoreConfig{Path: path, RetentionMode: "session"}, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected journal file: %v", err)
	}
	if err := es.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected journal file removed, stat err=%v", err)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	for _, tr := range cycle("old-session", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "old") {
		if err := es.Record(ctx, tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	for _, tr := range cycle("new-session", time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), "new") {
		if err := es.Record(ctx, tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC) }
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	sessions, _ := es.RecentSessions(ctx, 10)
	if len(sessions) != 1 || sessions[0].SessionID != "new-session" {
		t.Fatalf("expected only the new session, got %+v", sessions)
	}
}
