//go:build !portaudio

package audio

import (
	"context"
	"errors"
)

// ErrNoPortAudio is returned when the binary was built without the portaudio tag.
var ErrNoPortAudio = errors.New("portaudio support not compiled in (build with -tags portaudio)")

// PortAudioCapture is unavailable in this build.
type PortAudioCapture struct{}

// NewPortAudioCapture always fails in builds without portaudio.
func NewPortAudioCapture(int, int) (*PortAudioCapture, error) {
	return nil, ErrNoPortAudio
}

func (c *PortAudioCapture) Start(context.Context, ChunkFunc) error { return ErrNoPortAudio }
func (c *PortAudioCapture) Stop() error                            { return nil }
func (c *PortAudioCapture) Close() error                           { return nil }
