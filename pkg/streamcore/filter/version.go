package filter

import (
	"math"
	"sync/atomic"
)

// Stale is the version assigned to a destroyed agent instance.
// No event version is ever greater, so the instance is never current again.
const Stale int64 = math.MaxInt64

// Version is the index version an agent instance recorded when its
// filter set last shrank. It is shared between the agent instance handle
// and the agent instance context.
//
// Version is safe for concurrent use.
type Version struct {
	v atomic.Int64
}

// NewVersion returns a Version initialized to v.
func NewVersion(v int64) *Version {
	fv := &Version{}
	fv.v.Store(v)
	return fv
}

// Get returns the recorded version.
func (fv *Version) Get() int64 {
	return fv.v.Load()
}

// Set records a new version.
func (fv *Version) Set(v int64) {
	fv.v.Store(v)
}

// Advance raises the recorded version to v if v is greater. A stale
// version is never advanced.
func (fv *Version) Advance(v int64) {
	for {
		cur := fv.v.Load()
		if cur >= v {
			return
		}
		if fv.v.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Invalidate marks the version stale. Any event matched against a filter
// entry that still references the owning instance is then skipped.
func (fv *Version) Invalidate() {
	fv.v.Store(Stale)
}

// IsStale reports whether Invalidate was called.
func (fv *Version) IsStale() bool {
	return fv.v.Load() == Stale
}

// IsCurrent reports whether an event matched at eventVersion may be
// delivered. An event matched before the recorded version was matched
// against filters the instance has since removed and must go through
// filter-fault recovery.
func (fv *Version) IsCurrent(eventVersion int64) bool {
	return eventVersion >= fv.v.Load()
}
