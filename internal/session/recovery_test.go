package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecoveryTimerFires(t *testing.T) {
	var timer RecoveryTimer
	fired := make(chan uint64, 1)
	gen := timer.Arm(5*time.Millisecond, func(g uint64) { fired <- g })
	require.True(t, timer.Armed())

	select {
	case got := <-fired:
		require.Equal(t, gen, got)
		require.True(t, timer.Current(got))
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	require.False(t, timer.Armed())
}

func TestRecoveryTimerCancel(t *testing.T) {
	var timer RecoveryTimer
	var calls atomic.Int32
	timer.Arm(10*time.Millisecond, func(uint64) { calls.Add(1) })
	timer.Cancel()
	timer.Cancel()
	require.False(t, timer.Armed())

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestRecoveryTimerCancelNeverArmed(t *testing.T) {
	var timer RecoveryTimer
	require.NotPanics(t, timer.Cancel)
	require.False(t, timer.Armed())
}

func TestRecoveryTimerRearmReplaces(t *testing.T) {
	var timer RecoveryTimer
	fired := make(chan uint64, 2)
	first := timer.Arm(10*time.Millisecond, func(g uint64) { fired <- g })
	second := timer.Arm(20*time.Millisecond, func(g uint64) { fired <- g })
	require.NotEqual(t, first, second)

	select {
	case got := <-fired:
		require.Equal(t, second, got)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case got := <-fired:
		t.Fatalf("replaced schedule fired with generation %d", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestRecoveryTimerStaleAfterCancel(t *testing.T) {
	var timer RecoveryTimer
	fired := make(chan uint64, 1)
	timer.Arm(time.Millisecond, func(g uint64) { fired <- g })
	got := <-fired

	timer.Cancel()
	require.False(t, timer.Current(got))
}
