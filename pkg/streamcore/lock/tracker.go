package lock

import "sync"

// Tracker collects guards acquired while evaluating table-access
// expressions so they can be released together before the agent-instance
// write lock is released.
type Tracker struct {
	mu     sync.Mutex
	guards []*Guard
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track adds a held guard.
func (t *Tracker) Track(g *Guard) {
	t.mu.Lock()
	t.guards = append(t.guards, g)
	t.mu.Unlock()
}

// Acquire takes l's read lock and tracks the guard.
func (t *Tracker) Acquire(l Lock) {
	t.Track(l.AcquireRead())
}

// ReleaseAll releases tracked guards in reverse acquisition order.
func (t *Tracker) ReleaseAll() {
	t.mu.Lock()
	guards := t.guards
	t.guards = nil
	t.mu.Unlock()

	for i := len(guards) - 1; i >= 0; i-- {
		guards[i].Release()
	}
}

// Len returns the number of tracked guards.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.guards)
}
