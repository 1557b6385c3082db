// Package tui is the terminal front end. It polls the coordinator snapshot on
// a fixed cadence and maps keys onto the shared trigger surface; it never
// waits on a transcription.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loqalabs/loqa-dictate/internal/session"
)

const actionTimeout = 5 * time.Second

// Model is the root bubbletea model.
type Model struct {
	ctrl       session.Controller
	refresh    time.Duration
	sampleRate int
	now        func() time.Time

	snap     session.Snapshot
	lastErr  string
	width    int
	quitting bool
}

// New creates a model polling ctrl every refresh.
func New(ctrl session.Controller, refresh time.Duration, sampleRate int) Model {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	return Model{
		ctrl:       ctrl,
		refresh:    refresh,
		sampleRate: sampleRate,
		now:        time.Now,
		snap:       ctrl.Snapshot(),
	}
}

// Run drives the program until the user quits or ctx ends.
func Run(ctx context.Context, ctrl session.Controller, refresh time.Duration, sampleRate int) error {
	p := tea.NewProgram(New(ctrl, refresh, sampleRate), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(snapshotCmd(m.ctrl), tickCmd(m.refresh))
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return refreshMsg{} })
}

func snapshotCmd(ctrl session.Controller) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Snapshot: ctrl.Snapshot()}
	}
}

// actionCmd runs fn off the update loop so a slow coordinator cannot freeze
// rendering.
func actionCmd(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return ActionResultMsg{Action: action, Err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case refreshMsg:
		m.snap = m.ctrl.Snapshot()
		return m, tickCmd(m.refresh)
	case SnapshotMsg:
		m.snap = msg.Snapshot
		return m, nil
	case ActionResultMsg:
		if msg.Err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.Action, msg.Err)
		} else {
			m.lastErr = ""
		}
		return m, snapshotCmd(m.ctrl)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case KeySpace:
		return m, actionCmd("toggle", m.ctrl.Toggle)
	case KeyRecord:
		return m, actionCmd("start", m.ctrl.StartRecording)
	case KeyStop:
		return m, actionCmd("stop", m.ctrl.StopRecording)
	case KeyRecover:
		return m, actionCmd("recover", m.ctrl.Recover)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("loqa-dictate"))
	b.WriteString("\n\n")

	style, ok := stateStyles[m.snap.StateName]
	if !ok {
		style = hintStyle
	}
	b.WriteString(style.Render("● " + m.snap.Status))
	if m.snap.State == session.Recording && !m.snap.StartedAt.IsZero() {
		elapsed := m.now().Sub(m.snap.StartedAt).Round(100 * time.Millisecond)
		if elapsed < 0 {
			elapsed = 0
		}
		fmt.Fprintf(&b, "  %s", elapsed)
		if m.sampleRate > 0 {
			fmt.Fprintf(&b, "  (%.1fs buffered)", float64(m.snap.Buffered)/float64(m.sampleRate))
		}
	}
	b.WriteString("\n")
	if m.snap.Hint != "" {
		b.WriteString(hintStyle.Render(strings.ReplaceAll(m.snap.Hint, "\n", " ")))
		b.WriteString("\n")
	}

	if m.snap.LastText != "" {
		b.WriteString("\n")
		box := transcriptStyle
		if m.width > 4 {
			box = box.Width(m.width - 4)
		}
		b.WriteString(box.Render(m.snap.LastText))
		b.WriteString("\n")
	}

	if m.lastErr != "" {
		b.WriteString(errorStyle.Render(m.lastErr))
		b.WriteString("\n")
	} else if m.snap.State == session.Error && m.snap.LastError != "" {
		b.WriteString(errorStyle.Render(m.snap.LastError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("space toggle • r record • s stop • e recover • q quit"))
	b.WriteString("\n")
	return b.String()
}
