package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/session"
	_ "modernc.org/sqlite"
)

// Event is one recorded state transition.
type Event struct {
	ID        int64
	SessionID string
	From      string
	To        string
	Reason    string
	Status    string
	Samples   int
	LatencyMS int64
	Error     string
	CreatedAt time.Time
}

// SessionRecord summarises one recording.
type SessionRecord struct {
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	Outcome    string    `json:"outcome"`
	Transcript string    `json:"transcript,omitempty"`
}

// Store journals session transitions in SQLite. Audio is never stored.
//
// Retention modes: "ephemeral" keeps nothing, "session" keeps the journal for
// the lifetime of the process and removes the file on Close, "persistent"
// keeps it across runs subject to retention_days and max_sessions.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
	mu    sync.Mutex
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    outcome TEXT NOT NULL DEFAULT 'recording',
    transcript TEXT
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    reason TEXT,
    status TEXT,
    samples INTEGER NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session_created ON events(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources. In "session" mode the journal file is
// removed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.cfg.RetentionMode == "session" {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if rmErr := os.Remove(s.cfg.Path + suffix); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, rmErr)
			}
		}
	}
	return err
}

func (s *Store) enabled() bool {
	return s.cfg.RetentionMode != "ephemeral" && s.db != nil
}

// OnTransition journals tr. Failures are logged, never returned, so a broken
// journal cannot disturb the coordinator.
func (s *Store) OnTransition(ctx context.Context, tr session.Transition) {
	if err := s.Record(ctx, tr); err != nil {
		s.log.Warn("journal write failed", slog.String("session_id", tr.SessionID), slog.String("error", err.Error()))
	}
}

// Record writes the transition and keeps the session summary current.
func (s *Store) Record(ctx context.Context, tr session.Transition) error {
	if !s.enabled() || tr.SessionID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at := tr.At
	if at.IsZero() {
		at = s.clock()
	}
	at = at.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if tr.To == session.Recording {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO sessions(session_id, started_at) VALUES(?, ?)
			 ON CONFLICT(session_id) DO NOTHING`, tr.SessionID, at); err != nil {
			return err
		}
	}

	var errText string
	if tr.Err != nil {
		errText = tr.Err.Error()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO events(session_id, from_state, to_state, reason, status, samples, latency_ms, error, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM sessions WHERE session_id = ?)`,
		tr.SessionID, tr.From.String(), tr.To.String(), tr.Reason, tr.Status, tr.Samples,
		tr.Latency.Milliseconds(), errText, at, tr.SessionID); err != nil {
		return err
	}

	if outcome := outcomeOf(tr); outcome != "" {
		if _, err = tx.ExecContext(ctx,
			`UPDATE sessions SET outcome = ?, transcript = COALESCE(NULLIF(?, ''), transcript) WHERE session_id = ?`,
			outcome, tr.Text, tr.SessionID); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func outcomeOf(tr session.Transition) string {
	switch {
	case tr.From == session.Recording && tr.To == session.Ready:
		return tr.Reason
	case tr.From == session.Transcribing && tr.To == session.Ready:
		return "transcribed"
	case tr.To == session.Error:
		return tr.Reason
	case tr.To == session.Transcribing:
		return "transcribing"
	default:
		return ""
	}
}

// ListSessionEvents retrieves up to limit events for a session ordered ascending by time.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, from_state, to_state, reason, status, samples, latency_ms, error, created_at
		 FROM events WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var reason, status, errText sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.From, &e.To, &reason, &status, &e.Samples, &e.LatencyMS, &errText, &created); err != nil {
			return nil, err
		}
		e.Reason, e.Status, e.Error = reason.String, status.String, errText.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentSessions lists the newest sessions first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, started_at, outcome, transcript FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var started string
		var transcript sql.NullString
		if err := rows.Scan(&rec.SessionID, &started, &rec.Outcome, &transcript); err != nil {
			return nil, err
		}
		rec.Transcript = transcript.String
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			rec.StartedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if !s.enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure checks that the store matches its retention mode.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
