//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioCapture records from the default input device.
type PortAudioCapture struct {
	sampleRate      int
	framesPerBuffer int

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudioCapture initialises PortAudio. Call Close when done.
func NewPortAudioCapture(sampleRate, framesPerBuffer int) (*PortAudioCapture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &PortAudioCapture{sampleRate: sampleRate, framesPerBuffer: framesPerBuffer}, nil
}

// Start opens a mono int16 stream on the default device.
func (c *PortAudioCapture) Start(_ context.Context, fn ChunkFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return ErrCaptureBusy
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.sampleRate), c.framesPerBuffer, func(in []int16) {
		fn(in)
	})
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}
	c.stream = stream
	return nil
}

// Stop halts the stream. PortAudio waits for an in-flight callback before
// Stop returns.
func (c *PortAudioCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	stream := c.stream
	c.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("stop input stream: %w", err)
	}
	return stream.Close()
}

// Close releases PortAudio.
func (c *PortAudioCapture) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
