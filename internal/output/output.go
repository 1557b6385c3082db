// Package output delivers transcribed text to the places a user reads it
// from: the clipboard, the focused window, a file or the terminal.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/micmonay/keybd_event"
)

// Sink receives the text of one transcription.
type Sink interface {
	Deliver(ctx context.Context, text string) error
}

// Clipboard copies text to the system clipboard.
type Clipboard struct {
	write func(string) error
}

func NewClipboard() *Clipboard {
	return &Clipboard{write: clipboard.WriteAll}
}

func (c *Clipboard) Deliver(_ context.Context, text string) error {
	if clipboard.Unsupported {
		return errors.New("clipboard not supported on this system")
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// Paste places text on the clipboard and sends the platform paste shortcut to
// the focused window. With restore set the previous clipboard content is put
// back afterwards.
type Paste struct {
	read    func() (string, error)
	write   func(string) error
	press   func() error
	settle  time.Duration
	restore bool
}

// NewPaste prepares the virtual keyboard. On Linux the uinput device needs a
// moment before the first key event is accepted.
func NewPaste(restore bool) (*Paste, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("init virtual keyboard: %w", err)
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return &Paste{
		read:    clipboard.ReadAll,
		write:   clipboard.WriteAll,
		press:   kb.Launching,
		settle:  80 * time.Millisecond,
		restore: restore,
	}, nil
}

func (p *Paste) Deliver(ctx context.Context, text string) error {
	var previous string
	if p.restore {
		previous, _ = p.read()
	}
	if err := p.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if err := sleep(ctx, p.settle); err != nil {
		return err
	}
	if err := p.press(); err != nil {
		return fmt.Errorf("send paste shortcut: %w", err)
	}
	if p.restore {
		if err := sleep(ctx, p.settle); err != nil {
			return err
		}
		_ = p.write(previous)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// File overwrites path with the latest transcript.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Deliver(_ context.Context, text string) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(f.path, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

// Writer prints a framed result block.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Deliver(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.w, "\n=== Transcription Result ===\n%s\n============================\n", text)
	return err
}

// Multi fans text out to every sink. A failing sink does not stop the others.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Deliver(ctx context.Context, text string) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Deliver(ctx, text); err != nil {
			if m.logger != nil {
				m.logger.Warn("output sink failed", slog.String("sink", fmt.Sprintf("%T", sink)), slog.String("error", err.Error()))
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig assembles the sinks enabled in cfg. Paste setup failures are
// logged and the sink skipped so a headless host still gets the other outputs.
func FromConfig(cfg config.OutputConfig, stdout io.Writer, logger *slog.Logger) *Multi {
	var sinks []Sink
	if cfg.Stdout && stdout != nil {
		sinks = append(sinks, NewWriter(stdout))
	}
	if cfg.File != "" {
		sinks = append(sinks, NewFile(cfg.File))
	}
	if cfg.Clipboard {
		sinks = append(sinks, NewClipboard())
	}
	if cfg.AutoPaste {
		paste, err := NewPaste(!cfg.Clipboard)
		if err != nil {
			logger.Warn("auto paste disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, paste)
		}
	}
	return NewMulti(logger.With(slog.String("component", "output")), sinks...)
}
