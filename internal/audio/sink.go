package audio

import (
	"sync"
	"time"
)

// SinkStats reports sink counters for monitoring.
type SinkStats struct {
	Buffered int    `json:"buffered_samples"`
	Capacity int    `json:"capacity_samples"`
	Pushed   uint64 `json:"pushed_samples"`
	Evicted  uint64 `json:"evicted_samples"`
	Dropped  uint64 `json:"dropped_samples"`
}

// Sink is a bounded sliding window of mono PCM samples. When a push would
// exceed capacity the oldest samples are evicted, so capture never blocks and
// the newest audio is always retained.
type Sink struct {
	capacity int

	// ring storage; grows lazily up to capacity
	buf   []int16
	start int
	size  int

	sealed bool

	pushed  uint64
	evicted uint64
	dropped uint64

	mu sync.Mutex
}

// NewSink creates a sink retaining at most capacity samples.
func NewSink(capacity int) *Sink {
	if capacity < 1 {
		capacity = 1
	}
	return &Sink{capacity: capacity}
}

// NewSinkForDuration sizes a sink for maxDuration of audio at sampleRate.
func NewSinkForDuration(sampleRate int, maxDuration time.Duration) *Sink {
	return NewSink(int(int64(sampleRate) * int64(maxDuration) / int64(time.Second)))
}

// Push appends chunk to the tail of the window. It returns false when the
// sink is sealed and the chunk was dropped.
func (s *Sink) Push(chunk []int16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		s.dropped += uint64(len(chunk))
		return false
	}
	if len(chunk) == 0 {
		return true
	}
	s.pushed += uint64(len(chunk))

	if len(chunk) >= s.capacity {
		// only the newest capacity samples of the chunk survive
		s.evicted += uint64(s.size + len(chunk) - s.capacity)
		s.buf = make([]int16, s.capacity)
		copy(s.buf, chunk[len(chunk)-s.capacity:])
		s.start = 0
		s.size = s.capacity
		return true
	}

	if overflow := s.size + len(chunk) - s.capacity; overflow > 0 {
		s.start = (s.start + overflow) % max(len(s.buf), 1)
		s.size -= overflow
		s.evicted += uint64(overflow)
	}
	s.reserve(s.size + len(chunk))

	end := (s.start + s.size) % len(s.buf)
	n := copy(s.buf[end:], chunk)
	if n < len(chunk) {
		copy(s.buf, chunk[n:])
	}
	s.size += len(chunk)
	return true
}

// reserve grows the backing array so it can hold need samples, keeping the
// contents in order. Callers hold s.mu.
func (s *Sink) reserve(need int) {
	if need <= len(s.buf) {
		return
	}
	grown := max(2*len(s.buf), need, 4096)
	grown = min(grown, s.capacity)
	next := make([]int16, grown)
	s.copyOut(next)
	s.buf = next
	s.start = 0
}

// copyOut writes the ordered contents into dst. Callers hold s.mu.
func (s *Sink) copyOut(dst []int16) int {
	if s.size == 0 {
		return 0
	}
	first := min(s.size, len(s.buf)-s.start)
	n := copy(dst, s.buf[s.start:s.start+first])
	if first < s.size {
		n += copy(dst[n:], s.buf[:s.size-first])
	}
	return n
}

// Snapshot returns a copy of the buffered samples, oldest first.
func (s *Sink) Snapshot() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, s.size)
	s.copyOut(out)
	return out
}

// Clear empties the sink and releases its storage.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.start = 0
	s.size = 0
}

// Open makes the sink accept pushes again.
func (s *Sink) Open() {
	s.mu.Lock()
	s.sealed = false
	s.mu.Unlock()
}

// Seal makes subsequent pushes no-ops. Buffered samples are kept.
func (s *Sink) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Len returns the number of buffered samples.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Cap returns the maximum number of retained samples.
func (s *Sink) Cap() int {
	return s.capacity
}

// Stats returns a consistent view of the sink counters.
func (s *Sink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkStats{
		Buffered: s.size,
		Capacity: s.capacity,
		Pushed:   s.pushed,
		Evicted:  s.evicted,
		Dropped:  s.dropped,
	}
}
