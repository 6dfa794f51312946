// Package lock provides the agent-instance locks used to serialize
// lifecycle operations against event dispatch.
//
// Acquisition returns a Guard. The guard is the only way to release the
// lock, which lets a caller that pre-acquired a lock hand the guard to a
// callee instead of threading "already locked" flags through calls:
//
//	g := l.Acquire()
//	defer g.Release()
package lock

import (
	"sync"
	"sync/atomic"
)

// Lock is a reader/writer lock with guard-based release.
type Lock interface {
	// Acquire takes the write lock, blocking until it is available.
	Acquire() *Guard

	// AcquireRead takes the read lock, blocking until it is available.
	AcquireRead() *Guard

	// Name identifies the lock in logs.
	Name() string
}

// Guard represents a held lock. Release is idempotent.
type Guard struct {
	release  func()
	released atomic.Bool
}

func newGuard(release func()) *Guard {
	return &Guard{release: release}
}

// Release releases the lock. Calls after the first are no-ops.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	if g.released.CompareAndSwap(false, true) {
		g.release()
	}
}

// Held reports whether the guard has not been released yet.
func (g *Guard) Held() bool {
	return g != nil && !g.released.Load()
}

// RWLock is a Lock backed by sync.RWMutex.
type RWLock struct {
	mu   sync.RWMutex
	name string
}

// NewRWLock creates a named reader/writer lock.
func NewRWLock(name string) *RWLock {
	return &RWLock{name: name}
}

// Acquire implements Lock.
func (l *RWLock) Acquire() *Guard {
	l.mu.Lock()
	return newGuard(l.mu.Unlock)
}

// AcquireRead implements Lock.
func (l *RWLock) AcquireRead() *Guard {
	l.mu.RLock()
	return newGuard(l.mu.RUnlock)
}

// Name implements Lock.
func (l *RWLock) Name() string {
	return l.name
}

// NoopLock never blocks. It is used for statements that keep no state
// between events, or when locking is disabled engine-wide.
type NoopLock struct {
	name string
}

// NewNoopLock creates a named no-op lock.
func NewNoopLock(name string) *NoopLock {
	return &NoopLock{name: name}
}

// Acquire implements Lock.
func (l *NoopLock) Acquire() *Guard {
	return newGuard(func() {})
}

// AcquireRead implements Lock.
func (l *NoopLock) AcquireRead() *Guard {
	return newGuard(func() {})
}

// Name implements Lock.
func (l *NoopLock) Name() string {
	return l.name
}
