package session

import "context"

// StatusSink receives the projected status. Calls are fire and forget and
// arrive from the coordinator goroutine.
type StatusSink interface {
	SetStatus(text string)
	SetHint(text string)
	SetState(state State)
}

// OutputSink receives the text of each successful transcription exactly once.
// Deliver runs on the coordinator goroutine and must return when ctx ends.
type OutputSink interface {
	Deliver(ctx context.Context, text string) error
}

// Listener observes every transition. Implementations must return quickly.
type Listener interface {
	OnTransition(ctx context.Context, tr Transition)
}

// Controller is the trigger surface shared by every input source.
type Controller interface {
	Toggle(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Recover(ctx context.Context) error
	Snapshot() Snapshot
}

type nopStatus struct{}

func (nopStatus) SetStatus(string) {}
func (nopStatus) SetHint(string)   {}
func (nopStatus) SetState(State)   {}
