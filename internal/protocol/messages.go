package protocol

import "time"

// Status mirrors the coordinator's projection after every transition.
type Status struct {
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the text of a finished session broadcast on the bus.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Samples   int       `json:"samples"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Control asks the coordinator to act. Action is one of the Action* constants.
type Control struct {
	Action string `json:"action"`
}

// ControlReply answers a Control request sent with a reply subject.
type ControlReply struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

const (
	ActionToggle  = "toggle"
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRecover = "recover"
	ActionStatus  = "status"
)

const (
	SubjectStatus     = "dictate.status"
	SubjectTranscript = "dictate.transcript"
	SubjectControl    = "dictate.control"
)
