package device

import (
	"sync"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// structuralLock serializes structural access to one Device or Partition.
// Lock blocks until the holder releases it; TryLock and Unlock report misuse
// as InvalidState.
type structuralLock struct {
	mu sync.Mutex

	state sync.Mutex
	held  bool
	// gen counts acquisitions so a scope only releases its own hold.
	gen uint64
	// scope is the gen of the hold taken by withLock, or 0.
	scope uint64
}

func (l *structuralLock) acquired() uint64 {
	l.state.Lock()
	defer l.state.Unlock()
	l.held = true
	l.gen++
	return l.gen
}

func (l *structuralLock) lock() {
	l.mu.Lock()
	l.acquired()
}

func (l *structuralLock) tryLock(op, what string) error {
	if !l.mu.TryLock() {
		return types.Errorf(types.KindInvalidState, op, "%s is already locked", what)
	}
	l.acquired()
	return nil
}

func (l *structuralLock) unlock(op, what string) error {
	l.state.Lock()
	if !l.held {
		l.state.Unlock()
		return types.Errorf(types.KindInvalidState, op, "%s is not locked", what)
	}
	l.held = false
	l.scope = 0
	l.state.Unlock()

	l.mu.Unlock()
	return nil
}

// release drops a hold taken with Lock or TryLock. A hold owned by a running
// withLock scope is left alone and reported as InvalidState.
func (l *structuralLock) release(op, what string) error {
	l.state.Lock()
	switch {
	case !l.held:
		l.state.Unlock()
		return nil
	case l.scope != 0:
		l.state.Unlock()
		return types.Errorf(types.KindInvalidState, op, "%s is locked by a running WithLock", what)
	}
	l.held = false
	l.state.Unlock()

	l.mu.Unlock()
	return nil
}

func (l *structuralLock) locked() bool {
	l.state.Lock()
	defer l.state.Unlock()
	return l.held
}

// withLock runs fn while holding the lock and releases it on every exit path,
// including a panic in fn.
func (l *structuralLock) withLock(fn func() error) error {
	l.mu.Lock()
	gen := l.acquired()
	l.state.Lock()
	l.scope = gen
	l.state.Unlock()

	defer func() {
		// fn may already have released the lock, and another holder may own it now
		l.state.Lock()
		mine := l.held && l.gen == gen
		if mine {
			l.held = false
			l.scope = 0
		}
		l.state.Unlock()
		if mine {
			l.mu.Unlock()
		}
	}()
	return fn()
}
