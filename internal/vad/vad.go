// Package vad implements amplitude based voice activity detection and the
// auto-stop policy applied while recording.
package vad

import (
	"fmt"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/audio"
)

// Analyze returns the peak absolute amplitude of chunk, normalised to [0, 1].
func Analyze(chunk []int16) float64 {
	var peak int32
	for _, s := range chunk {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / audio.MaxSampleValue
}

// Detector classifies chunks as voice when their peak exceeds Threshold.
type Detector struct {
	Threshold float64
}

// NewDetector validates threshold and returns a Detector.
func NewDetector(threshold float64) (Detector, error) {
	if threshold <= 0 || threshold > 1 {
		return Detector{}, fmt.Errorf("threshold must be in (0, 1], got %f", threshold)
	}
	return Detector{Threshold: threshold}, nil
}

// IsVoice reports whether chunk contains voice and its peak amplitude.
func (d Detector) IsVoice(chunk []int16) (bool, float64) {
	peak := Analyze(chunk)
	return peak > d.Threshold, peak
}

// StopReason explains why the policy ended a recording.
type StopReason int

const (
	StopNone StopReason = iota
	StopSilence
	StopMaxDuration
	StopRequested
)

func (r StopReason) String() string {
	switch r {
	case StopSilence:
		return "silence"
	case StopMaxDuration:
		return "max_duration"
	case StopRequested:
		return "requested"
	default:
		return "none"
	}
}

// Policy decides when a recording ends on its own.
type Policy struct {
	SilenceDuration time.Duration
	MaxDuration     time.Duration
}

// Evaluate applies the policy at now. lastVoice is the zero time when no voice
// has been heard yet, in which case only the hard cap applies.
func (p Policy) Evaluate(startedAt, lastVoice, now time.Time) StopReason {
	if p.MaxDuration > 0 && now.Sub(startedAt) >= p.MaxDuration {
		return StopMaxDuration
	}
	if !lastVoice.IsZero() && p.SilenceDuration > 0 && now.Sub(lastVoice) > p.SilenceDuration {
		return StopSilence
	}
	return StopNone
}
