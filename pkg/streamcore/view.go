package streamcore

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
)

// View consumes insert and remove streams. Views are compared by
// identity when removed, so implementations must be comparable.
type View interface {
	Update(newEvents, oldEvents []filter.Event)
}

// Viewable is a view other views can be attached to.
type Viewable interface {
	View
	AddView(v View)
	RemoveView(v View) bool
}

// Terminable is implemented by final views that flush pending output when
// their context partition ends while the statement keeps running.
type Terminable interface {
	Terminated()
}

// Snapshotter is implemented by final views whose state survives the
// partition through the runtime's snapshot store.
type Snapshotter interface {
	Snapshot() ([]byte, error)
}

// fanout is the child list shared by MergeView and OutputView.
type fanout struct {
	mu    sync.RWMutex
	views []View
}

func (f *fanout) AddView(v View) {
	f.mu.Lock()
	f.views = append(f.views, v)
	f.mu.Unlock()
}

func (f *fanout) RemoveView(v View) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.views, v)
	if i < 0 {
		return false
	}
	f.views = slices.Delete(f.views, i, i+1)
	return true
}

func (f *fanout) Views() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.views)
}

func (f *fanout) Update(newEvents, oldEvents []filter.Event) {
	f.mu.RLock()
	views := f.views
	f.mu.RUnlock()
	for _, v := range views {
		v.Update(newEvents, oldEvents)
	}
}

// MergeView combines the final views of all agent instances of a
// statement into one output.
type MergeView struct {
	fanout
}

var _ Viewable = (*MergeView)(nil)

// NewMergeView creates an empty merge view.
func NewMergeView() *MergeView {
	return &MergeView{}
}

// OutputView is a pass-through final view. Factories that need no
// output processing of their own can use it as StartResult.FinalView.
type OutputView struct {
	fanout
	terminated atomic.Bool
}

var (
	_ Viewable   = (*OutputView)(nil)
	_ Terminable = (*OutputView)(nil)
)

// NewOutputView creates an output view with no children.
func NewOutputView() *OutputView {
	return &OutputView{}
}

// Terminated implements Terminable.
func (o *OutputView) Terminated() {
	o.terminated.Store(true)
}

// IsTerminated reports whether the partition ended before the statement.
func (o *OutputView) IsTerminated() bool {
	return o.terminated.Load()
}
