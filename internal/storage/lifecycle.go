package storage

import (
	"context"
	"sync"
)

type lifecycleState int

const (
	stateNew lifecycleState = iota
	stateReady
	stateDisposed
)

// Lifecycle tracks the initialized/disposed state of a provider. In-flight
// operations hold a read lock so Dispose waits for them to drain.
type Lifecycle struct {
	mu    sync.RWMutex
	state lifecycleState
}

// Initialize runs fn once. Later calls return Success without running fn
// again. Disposal is terminal: a disposed provider answers NotInitialized and
// reopening the medium takes a new instance.
func (l *Lifecycle) Initialize(fn func() Result) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateReady:
		return Success
	case stateDisposed:
		return NotInitialized
	}
	result := fn()
	if result.OK() {
		l.state = stateReady
	}
	return result
}

// Enter admits an operation. Callers must invoke the returned func when done.
func (l *Lifecycle) Enter() (func(), bool) {
	l.mu.RLock()
	if l.state != stateReady {
		l.mu.RUnlock()
		return nil, false
	}
	return l.mu.RUnlock, true
}

// Dispose runs fn when the provider is ready. Disposing twice is a no-op.
func (l *Lifecycle) Dispose(fn func() Result) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateReady {
		return Success
	}
	l.state = stateDisposed
	return fn()
}

func (l *Lifecycle) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == stateReady
}

// Cancelled returns Failed when ctx is already done. Providers call it before
// touching the medium so a cancelled save never reports Success.
func Cancelled(ctx context.Context) (Result, bool) {
	if ctx.Err() != nil {
		return Failed, true
	}
	return Success, false
}
