package session

import "time"

// State is the coordinator's position in the record/transcribe cycle.
type State int

const (
	Ready State = iota
	Recording
	Transcribing
	Error
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a session currently owns the pipeline.
func (s State) Active() bool {
	return s == Recording || s == Transcribing
}

// Status texts projected to the status sink.
const (
	StatusReady        = "Ready"
	StatusRecording    = "Recording..."
	StatusTranscribing = "Transcribing..."
	StatusError        = "Error"
	StatusNoAudio      = "No audio"
	StatusMicFailure   = "Microphone unavailable"
)

const (
	hintReady        = "Press to\nstart recording"
	hintRecording    = "Press again\nto stop"
	hintTranscribing = "Processing audio\nplease wait"
	hintError        = "Will retry in\na moment..."
	hintNoAudio      = "Nothing was\nrecorded"
	hintMicFailure   = "Check the audio\ninput device"
)

// Snapshot is a point in time view of the coordinator for pollers.
type Snapshot struct {
	State       State     `json:"-"`
	StateName   string    `json:"state"`
	Status      string    `json:"status"`
	Hint        string    `json:"hint"`
	SessionID   string    `json:"session_id,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	LastVoiceAt time.Time `json:"last_voice_at,omitzero"`
	LastText    string    `json:"last_text,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Buffered    int       `json:"buffered_samples"`
}

// Transition describes one state change. Reason is a short machine readable
// cause such as "requested", "silence" or "engine_error".
type Transition struct {
	SessionID string
	From      State
	To        State
	Reason    string
	Status    string
	Text      string
	Err       error
	Samples   int
	Latency   time.Duration
	At        time.Time
}
