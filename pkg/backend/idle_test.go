package backend

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func TestActivityCounters(t *testing.T) {
	a := NewActivity()
	assert.Equal(t, 0, a.ActiveTasks())

	a.Begin()
	a.Begin()
	assert.Equal(t, 2, a.ActiveTasks())

	a.End()
	a.End()
	assert.Equal(t, 0, a.ActiveTasks())
}

func TestActivityTouchResetsIdleClock(t *testing.T) {
	a := NewActivity()
	a.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	require.GreaterOrEqual(t, a.IdleFor(), 30*time.Minute)

	a.Touch()
	assert.Less(t, a.IdleFor(), time.Minute)
}

func TestWatchFiresAfterIdleTimeout(t *testing.T) {
	a := NewActivity()

	fired := make(chan struct{})
	go a.Watch(context.Background(), 30*time.Millisecond, 10*time.Millisecond, testLogger(), func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("idle shutdown never fired")
	}
}

func TestWatchHoldsWhileTasksActive(t *testing.T) {
	a := NewActivity()
	a.Begin()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Bool
	go a.Watch(ctx, 20*time.Millisecond, 5*time.Millisecond, testLogger(), func() {
		fired.Store(true)
	})

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load(), "shutdown fired while a task was active")

	a.End()
	require.Eventually(t, fired.Load, 2*time.Second, 5*time.Millisecond)
}

func TestWatchStopsOnCancel(t *testing.T) {
	a := NewActivity()
	a.Begin() // keeps the timeout from ever firing

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Watch(ctx, time.Hour, time.Millisecond, testLogger(), func() {
			t.Error("shutdown fired after cancel")
		})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
