package index

import (
	"context"
	"sync"
)

// State is the lifecycle state of a Service.
type State int

const (
	// StatePaused is the initial state; workers wait until Start.
	StatePaused State = iota
	// StateRunning lets workers take new work.
	StateRunning
	// StateShuttingDown is terminal.
	StateShuttingDown
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// lifecycle is the pause/run/shutdown state machine. Waiters block on a
// channel that is closed and replaced on every transition.
type lifecycle struct {
	mu    sync.Mutex
	state State
	wake  chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StatePaused, wake: make(chan struct{})}
}

func (l *lifecycle) current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// transition moves to next unless already terminal. It reports whether the state changed.
func (l *lifecycle) transition(next State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateShuttingDown || l.state == next {
		return false
	}
	l.state = next
	close(l.wake)
	l.wake = make(chan struct{})
	return true
}

// waitForRunning blocks while paused. It returns false once shutting down or ctx is done.
func (l *lifecycle) waitForRunning(ctx context.Context) bool {
	for {
		l.mu.Lock()
		state, wake := l.state, l.wake
		l.mu.Unlock()

		switch state {
		case StateRunning:
			return true
		case StateShuttingDown:
			return false
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return false
		}
	}
}
