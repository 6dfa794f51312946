package streamcore

import (
	"context"
	"sync/atomic"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
	"github.com/randalmurphal/streamcore/pkg/streamcore/lock"
)

// HandleState is the lifecycle state of an agent instance handle.
type HandleState int32

const (
	// HandleActive accepts dispatch.
	HandleActive HandleState = iota
	// HandleDestroyed rejects dispatch. It is terminal.
	HandleDestroyed
)

// String returns the state name.
func (s HandleState) String() string {
	switch s {
	case HandleActive:
		return "active"
	case HandleDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Descriptor is the immutable dispatch profile of a handle.
type Descriptor struct {
	Priority    int
	Preemptive  bool
	CanSelfJoin bool
}

// Dispatchable runs an agent instance's internal dispatch: output queued
// by filter callbacks is flushed once all callbacks for an event ran.
type Dispatchable interface {
	Execute(ctx context.Context) error
}

// DispatchFunc adapts a function to Dispatchable.
type DispatchFunc func(ctx context.Context) error

// Execute implements Dispatchable.
func (f DispatchFunc) Execute(ctx context.Context) error { return f(ctx) }

// FaultHandler receives events whose match predates the handle's filter
// allocation. A context controller typically answers by calling
// Runtime.HandleFilterFault for the partitions it manages.
type FaultHandler interface {
	HandleFilterFault(ctx context.Context, evt filter.Event, version int64)
}

// AgentInstanceHandle identifies one (statement, agent instance) pair to
// the filter index and the dispatch router. It carries the instance lock
// and the filter version that marks in-flight matches stale.
type AgentInstanceHandle struct {
	statement       *Statement
	agentInstanceID int
	descriptor      Descriptor
	lock            lock.Lock
	version         *filter.Version
	state           atomic.Int32

	instance atomic.Pointer[AgentInstance]
	dispatch atomic.Pointer[dispatchSlot]
	fault    atomic.Pointer[faultSlot]
}

type dispatchSlot struct{ d Dispatchable }
type faultSlot struct{ h FaultHandler }

func newHandle(stmt *Statement, agentInstanceID int, l lock.Lock) *AgentInstanceHandle {
	return &AgentInstanceHandle{
		statement:       stmt,
		agentInstanceID: agentInstanceID,
		descriptor: Descriptor{
			Priority:    stmt.priority,
			Preemptive:  stmt.preemptive,
			CanSelfJoin: stmt.selfJoin,
		},
		lock:    l,
		version: filter.NewVersion(0),
	}
}

// Statement returns the owning statement.
func (h *AgentInstanceHandle) Statement() *Statement { return h.statement }

// StatementID returns the owning statement's id.
func (h *AgentInstanceHandle) StatementID() int64 { return h.statement.id }

// AgentInstanceID returns the agent instance id.
func (h *AgentInstanceHandle) AgentInstanceID() int { return h.agentInstanceID }

// Descriptor returns the dispatch profile.
func (h *AgentInstanceHandle) Descriptor() Descriptor { return h.descriptor }

// Lock returns the agent instance lock.
func (h *AgentInstanceHandle) Lock() lock.Lock { return h.lock }

// FilterVersion returns the index version after the instance last removed
// a filter. Matches made at an earlier index version are not current.
func (h *AgentInstanceHandle) FilterVersion() *filter.Version { return h.version }

// State returns the current state.
func (h *AgentInstanceHandle) State() HandleState { return HandleState(h.state.Load()) }

// IsDestroyed reports whether the handle has been destroyed.
func (h *AgentInstanceHandle) IsDestroyed() bool { return h.State() == HandleDestroyed }

// destroy moves the handle to HandleDestroyed and invalidates its filter
// version. It reports false if the handle was already destroyed.
func (h *AgentInstanceHandle) destroy() bool {
	if !h.state.CompareAndSwap(int32(HandleActive), int32(HandleDestroyed)) {
		return false
	}
	h.version.Invalidate()
	return true
}

func (h *AgentInstanceHandle) internalDispatch(ctx context.Context) error {
	slot := h.dispatch.Load()
	if slot == nil {
		return nil
	}
	return slot.d.Execute(ctx)
}

func (h *AgentInstanceHandle) faultHandler() FaultHandler {
	if slot := h.fault.Load(); slot != nil {
		return slot.h
	}
	return nil
}

// HandleCallback is a filter index entry: a filter callback bound to the
// handle of the agent instance that registered it.
type HandleCallback struct {
	handle   *AgentInstanceHandle
	callback filter.Callback
	version  int64
	removed  atomic.Bool
}

// StatementID implements filter.Handle.
func (c *HandleCallback) StatementID() int64 { return c.handle.StatementID() }

// Handle returns the owning agent instance handle.
func (c *HandleCallback) Handle() *AgentInstanceHandle { return c.handle }

// Callback returns the wrapped filter callback.
func (c *HandleCallback) Callback() filter.Callback { return c.callback }

// Version returns the index version the entry became visible at.
func (c *HandleCallback) Version() int64 { return c.version }

// Removed reports whether the entry was removed from the index.
func (c *HandleCallback) Removed() bool { return c.removed.Load() }
