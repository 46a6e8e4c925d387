package backend

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultIdleTimeout is how long the backend may sit without
	// activity before it shuts itself down.
	DefaultIdleTimeout = 600 * time.Second

	// DefaultCheckInterval is how often the idle watcher re-checks.
	DefaultCheckInterval = 30 * time.Second
)

// Activity tracks when the backend last did useful work and how many
// tasks are still running. The idle watcher reads both to decide when
// the process is unneeded.
type Activity struct {
	lastActivity atomic.Int64 // unix nanos
	activeTasks  atomic.Int64
}

// NewActivity returns a tracker whose clock starts now.
func NewActivity() *Activity {
	a := &Activity{}
	a.Touch()
	return a
}

// Touch marks the backend as recently used.
func (a *Activity) Touch() {
	a.lastActivity.Store(time.Now().UnixNano())
}

// Begin registers a task that must hold off idle shutdown.
func (a *Activity) Begin() {
	a.activeTasks.Add(1)
	a.Touch()
}

// End unregisters a task started with Begin.
func (a *Activity) End() {
	a.activeTasks.Add(-1)
	a.Touch()
}

// ActiveTasks returns the number of tasks currently between Begin and End.
func (a *Activity) ActiveTasks() int {
	return int(a.activeTasks.Load())
}

// IdleFor reports how long ago the last activity was.
func (a *Activity) IdleFor() time.Duration {
	return time.Since(time.Unix(0, a.lastActivity.Load()))
}

// Watch polls every checkInterval until the tracker has been idle for
// at least idleTimeout with zero active tasks, then calls shutdown once
// and returns. Cancelling ctx stops the watch without firing.
func (a *Activity) Watch(ctx context.Context, idleTimeout, checkInterval time.Duration, logger zerolog.Logger, shutdown func()) {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := a.IdleFor()
			active := a.ActiveTasks()

			logger.Debug().
				Int("activeTasks", active).
				Dur("idle", idle).
				Msg("Idle check")

			if active == 0 && idle >= idleTimeout {
				logger.Info().
					Dur("idle", idle).
					Msg("Idle timeout reached, shutting down")
				shutdown()
				return
			}
		}
	}
}
