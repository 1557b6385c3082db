package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ChunkFunc receives captured mono samples. Implementations of Capture never
// invoke it concurrently for the same capture instance, and the slice is only
// valid for the duration of the call.
type ChunkFunc func(samples []int16)

// Capture abstracts an input device delivering audio through a callback.
type Capture interface {
	// Start begins delivering chunks to fn. It returns an error when the
	// device is unavailable or busy.
	Start(ctx context.Context, fn ChunkFunc) error
	// Stop halts delivery. No callback runs after Stop returns.
	Stop() error
}

// ErrCaptureBusy is returned when Start is called on a running capture.
var ErrCaptureBusy = errors.New("capture already running")

// SyntheticCapture replays a fixed clip at real-time cadence and then emits
// silence until stopped. It stands in for a microphone on hosts without an
// audio device and in end-to-end tests.
type SyntheticCapture struct {
	clip            []int16
	sampleRate      int
	framesPerBuffer int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSyntheticCapture builds a capture replaying clip.
func NewSyntheticCapture(clip []int16, sampleRate, framesPerBuffer int) *SyntheticCapture {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 512
	}
	return &SyntheticCapture{
		clip:            clip,
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
	}
}

// Start launches the replay goroutine.
func (c *SyntheticCapture) Start(ctx context.Context, fn ChunkFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrCaptureBusy
	}
	if c.sampleRate <= 0 {
		return errors.New("synthetic capture: sample rate must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(ctx, fn, c.done)
	return nil
}

func (c *SyntheticCapture) run(ctx context.Context, fn ChunkFunc, done chan struct{}) {
	defer close(done)

	interval := time.Duration(c.framesPerBuffer) * time.Second / time.Duration(c.sampleRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	chunk := make([]int16, c.framesPerBuffer)
	pos := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		clear(chunk)
		if pos < len(c.clip) {
			pos += copy(chunk, c.clip[pos:])
		}
		fn(chunk)
	}
}

// Stop cancels the replay and waits for the goroutine to exit.
func (c *SyntheticCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.cancel()
	<-c.done
	c.running = false
	return nil
}
