// Package status provides sinks for the coordinator's status projection.
package status

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/loqalabs/loqa-dictate/internal/session"
)

// Log writes status changes to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With(slog.String("component", "status"))}
}

func (l *Log) SetStatus(text string) {
	l.logger.Info("status", slog.String("text", text))
}

func (l *Log) SetHint(text string) {
	l.logger.Debug("hint", slog.String("text", flatten(text)))
}

func (l *Log) SetState(state session.State) {
	l.logger.Debug("state", slog.String("state", state.String()))
}

func flatten(hint string) string {
	return strings.ReplaceAll(hint, "\n", " ")
}

// Notifier raises desktop notifications when recording starts and when a
// transcription fails. Notifications are sent from their own goroutine so a
// slow notification daemon never holds up the caller.
type Notifier struct {
	title  string
	notify func(title, message string) error
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewNotifier(title string, logger *slog.Logger) *Notifier {
	return &Notifier{
		title: title,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		logger: logger,
	}
}

func (n *Notifier) SetStatus(string) {}
func (n *Notifier) SetHint(string)   {}

func (n *Notifier) SetState(state session.State) {
	var message string
	switch state {
	case session.Recording:
		message = "Recording started"
	case session.Error:
		message = "Transcription failed"
	default:
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.notify(n.title, message); err != nil {
			n.logger.Debug("notification failed", slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until pending notifications are sent.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Multi forwards every call to each sink in order.
type Multi []session.StatusSink

func (m Multi) SetStatus(text string) {
	for _, s := range m {
		s.SetStatus(text)
	}
}

func (m Multi) SetHint(text string) {
	for _, s := range m {
		s.SetHint(text)
	}
}

func (m Multi) SetState(state session.State) {
	for _, s := range m {
		s.SetState(state)
	}
}
