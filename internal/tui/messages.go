package tui

import "github.com/loqalabs/loqa-dictate/internal/session"

// refreshMsg triggers a snapshot poll.
type refreshMsg struct{}

// SnapshotMsg carries the coordinator's current projection.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// ActionResultMsg reports the outcome of a key triggered action.
type ActionResultMsg struct {
	Action string
	Err    error
}
