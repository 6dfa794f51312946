package streamcore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/randalmurphal/streamcore/pkg/streamcore/activation"
	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
	"github.com/randalmurphal/streamcore/pkg/streamcore/lock"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
	"github.com/randalmurphal/streamcore/pkg/streamcore/resolution"
	"github.com/randalmurphal/streamcore/pkg/streamcore/schedule"
)

// ContextProperties describe the partition an agent instance runs for,
// such as the values of the partitioning key.
type ContextProperties map[string]any

// PartitionKey renders the properties as "k1=v1,k2=v2" with keys sorted.
// It is empty for an unpartitioned context.
func (p ContextProperties) PartitionKey() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(p)) {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, p[k])
	}
	return b.String()
}

// ScriptContext is the variable scope of one agent instance's scripts.
type ScriptContext struct {
	mu   sync.RWMutex
	vars map[string]any
}

func newScriptContext() *ScriptContext {
	return &ScriptContext{vars: make(map[string]any)}
}

// Get returns a variable.
func (s *ScriptContext) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set assigns a variable.
func (s *ScriptContext) Set(name string, v any) {
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// AgentInstanceContext is the execution environment shared by every
// evaluator of one agent instance. It is created by Runtime.Start and
// handed to the statement's Factory.
type AgentInstanceContext struct {
	runtime    *Runtime
	statement  *Statement
	handle     *AgentInstanceHandle
	contextID  string
	properties ContextProperties
	script     *ScriptContext
	tableLocks *lock.Tracker
	logger     *slog.Logger

	mu          sync.Mutex
	termination []StopCallback
	filters     []func()
}

var _ activation.Target = (*AgentInstanceContext)(nil)

func newAgentInstanceContext(r *Runtime, stmt *Statement, h *AgentInstanceHandle, contextID string, props ContextProperties) *AgentInstanceContext {
	c := &AgentInstanceContext{
		runtime:    r,
		statement:  stmt,
		handle:     h,
		contextID:  contextID,
		properties: maps.Clone(props),
		tableLocks: lock.NewTracker(),
		logger:     observability.EnrichLogger(r.logger, stmt.name, h.agentInstanceID),
	}
	if stmt.script {
		c.script = newScriptContext()
	}
	return c
}

// Statement returns the owning statement.
func (c *AgentInstanceContext) Statement() *Statement { return c.statement }

// StatementID implements activation.Target.
func (c *AgentInstanceContext) StatementID() int64 { return c.statement.id }

// AgentInstanceID implements activation.Target.
func (c *AgentInstanceContext) AgentInstanceID() int { return c.handle.agentInstanceID }

// Handle returns the agent instance handle.
func (c *AgentInstanceContext) Handle() *AgentInstanceHandle { return c.handle }

// ContextID returns the id of the context the instance was started in.
func (c *AgentInstanceContext) ContextID() string { return c.contextID }

// Properties returns the partition properties. Callers must not modify them.
func (c *AgentInstanceContext) Properties() ContextProperties { return c.properties }

// Script returns the instance's script scope, or nil if the statement
// was not created WithScriptContext.
func (c *AgentInstanceContext) Script() *ScriptContext { return c.script }

// Logger returns a logger scoped to this agent instance.
func (c *AgentInstanceContext) Logger() *slog.Logger { return c.logger }

// Streams returns the runtime's stream activation service.
func (c *AgentInstanceContext) Streams() *activation.Service { return c.runtime.streams }

// RegisterFilter implements activation.Target.
func (c *AgentInstanceContext) RegisterFilter(spec filter.Spec, cb filter.Callback) (func(), error) {
	_, remove, err := c.RegisterFilterHandle(spec, cb)
	return remove, err
}

// RegisterFilterHandle installs cb in the runtime's filter index and
// returns the index entry together with its removal function.
//
// Registering a filter leaves the handle's filter version alone, so a
// match already in flight for another filter of this instance stays
// current. Removing one advances the version to the index version after
// the removal: in-flight matches made before it are no longer current.
func (c *AgentInstanceContext) RegisterFilterHandle(spec filter.Spec, cb filter.Callback) (*HandleCallback, func(), error) {
	hc := &HandleCallback{handle: c.handle, callback: cb}
	remove, version, err := c.runtime.index.Add(spec, hc)
	if err != nil {
		return nil, nil, fmt.Errorf("register %s filter: %w", spec.EventType, err)
	}
	hc.version = version

	var once sync.Once
	unregister := func() {
		once.Do(func() {
			hc.removed.Store(true)
			remove()
			c.handle.version.Advance(c.runtime.index.Version())
		})
	}

	c.mu.Lock()
	c.filters = append(c.filters, unregister)
	c.mu.Unlock()
	return hc, unregister, nil
}

// removeFilters removes every filter registered through this context.
// A removal that panics does not keep the others registered.
func (c *AgentInstanceContext) removeFilters() error {
	c.mu.Lock()
	filters := c.filters
	c.filters = nil
	c.mu.Unlock()

	var errs error
	for _, remove := range filters {
		errs = multierr.Append(errs, safeCall(c.statement.name, c.handle.agentInstanceID, "remove filter", func() error {
			remove()
			return nil
		}))
	}
	return errs
}

// SetInternalDispatch installs the routine run after the filter callbacks
// of every dispatched event.
func (c *AgentInstanceContext) SetInternalDispatch(d Dispatchable) {
	if d == nil {
		c.handle.dispatch.Store(nil)
		return
	}
	c.handle.dispatch.Store(&dispatchSlot{d: d})
}

// SetFaultHandler installs the handler for events matched before the
// instance's filters were allocated.
func (c *AgentInstanceContext) SetFaultHandler(h FaultHandler) {
	if h == nil {
		c.handle.fault.Store(nil)
		return
	}
	c.handle.fault.Store(&faultSlot{h: h})
}

// Schedule registers a time-based callback for this agent instance. It is
// removed from the schedule directory when the instance stops.
func (c *AgentInstanceContext) Schedule(cb schedule.Callback) {
	c.runtime.schedules.Add(c.statement.id, c.handle.agentInstanceID, cb)
}

// Resolve returns a cached evaluator lookup for this agent instance.
func (c *AgentInstanceContext) Resolve(name string, load resolution.Loader) (any, error) {
	return c.statement.resolution.Resolve(c.handle.agentInstanceID, name, load)
}

// LockTables read-locks every table the statement declared, once per
// start, dispatch or stop scope.
func (c *AgentInstanceContext) LockTables() {
	if len(c.statement.tables) == 0 || c.tableLocks.Len() > 0 {
		return
	}
	for _, t := range c.statement.tables {
		c.tableLocks.Acquire(t)
	}
}

// TableLocks returns the tracker of table locks held in the current scope.
func (c *AgentInstanceContext) TableLocks() *lock.Tracker { return c.tableLocks }

// AddTerminationCallback registers a callback run at stop, before the
// start result's stop callback.
func (c *AgentInstanceContext) AddTerminationCallback(cb StopCallback) {
	if cb == nil {
		return
	}
	c.mu.Lock()
	c.termination = append(c.termination, cb)
	c.mu.Unlock()
}

// stopCallback composes the termination callbacks with the start
// result's stop callback. Termination callbacks run first.
func (c *AgentInstanceContext) stopCallback(explicit StopCallback) StopCallback {
	c.mu.Lock()
	callbacks := slices.Clone(c.termination)
	c.mu.Unlock()
	return composeStop(c.statement.name, c.handle.agentInstanceID, append(callbacks, explicit))
}

// SnapshotPreload builds a preload action restoring this partition's
// snapshot through restore. It does nothing when the runtime has no
// snapshot store.
func (c *AgentInstanceContext) SnapshotPreload(restore func(data []byte) error) PreloadAction {
	if c.runtime.snapshots == nil {
		return func(ctx context.Context) error { return nil }
	}
	return SnapshotPreload(c.runtime.snapshots, c.statement.name, c.partition(), restore)
}

func (c *AgentInstanceContext) partition() string {
	if key := c.properties.PartitionKey(); key != "" {
		return key
	}
	return defaultPartition
}
