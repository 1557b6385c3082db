package vad

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAnalyzePeak(t *testing.T) {
	require.Zero(t, Analyze(nil))
	require.Zero(t, Analyze([]int16{0, 0, 0}))
	require.InDelta(t, 0.5, Analyze([]int16{10, -16384, 200}), 1e-9)
	require.Equal(t, 1.0, Analyze([]int16{math.MinInt16}))
}

func TestDetector(t *testing.T) {
	_, err := NewDetector(0)
	require.Error(t, err)
	_, err = NewDetector(1.5)
	require.Error(t, err)

	d, err := NewDetector(0.01)
	require.NoError(t, err)

	voice, peak := d.IsVoice([]int16{100, -200})
	require.False(t, voice)
	require.InDelta(t, 200.0/32768, peak, 1e-9)

	voice, _ = d.IsVoice([]int16{0, 400})
	require.True(t, voice)

	// just under the threshold is still silence
	voice, _ = d.IsVoice([]int16{int16(327)})
	require.False(t, voice)
}

func TestPolicySilence(t *testing.T) {
	p := Policy{SilenceDuration: time.Second, MaxDuration: 30 * time.Second}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, StopNone, p.Evaluate(t0, t0, t0.Add(500*time.Millisecond)))
	require.Equal(t, StopNone, p.Evaluate(t0, t0, t0.Add(time.Second)))
	require.Equal(t, StopSilence, p.Evaluate(t0, t0, t0.Add(1100*time.Millisecond)))
}

func TestPolicyWithoutVoiceOnlyHonoursMaxDuration(t *testing.T) {
	p := Policy{SilenceDuration: time.Second, MaxDuration: 30 * time.Second}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, StopNone, p.Evaluate(t0, time.Time{}, t0.Add(29*time.Second)))
	require.Equal(t, StopMaxDuration, p.Evaluate(t0, time.Time{}, t0.Add(30*time.Second)))
}

func TestPolicyMaxDurationWinsOverFreshVoice(t *testing.T) {
	p := Policy{SilenceDuration: time.Second, MaxDuration: 30 * time.Second}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := t0.Add(30 * time.Second)

	require.Equal(t, StopMaxDuration, p.Evaluate(t0, now, now))
	require.Equal(t, "max_duration", StopMaxDuration.String())
}
