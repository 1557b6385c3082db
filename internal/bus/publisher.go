package bus

import (
	"context"

	"github.com/loqalabs/loqa-dictate/internal/protocol"
	"github.com/loqalabs/loqa-dictate/internal/session"
)

// Publisher broadcasts every transition on SubjectStatus and the text of each
// successful session on SubjectTranscript.
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) OnTransition(_ context.Context, tr session.Transition) {
	status := protocol.Status{
		SessionID: tr.SessionID,
		State:     tr.To.String(),
		Status:    tr.Status,
		Reason:    tr.Reason,
		Timestamp: tr.At.UTC(),
	}
	if tr.Err != nil {
		status.Error = tr.Err.Error()
	}
	if err := p.client.PublishJSON(protocol.SubjectStatus, status); err != nil {
		p.client.log.Warn("failed to publish status", slogError(err))
	}

	if tr.Text == "" {
		return
	}
	transcript := protocol.Transcript{
		SessionID: tr.SessionID,
		Text:      tr.Text,
		Samples:   tr.Samples,
		LatencyMS: tr.Latency.Milliseconds(),
		Timestamp: tr.At.UTC(),
	}
	if err := p.client.PublishJSON(protocol.SubjectTranscript, transcript); err != nil {
		p.client.log.Warn("failed to publish transcript", slogError(err))
	}
}
