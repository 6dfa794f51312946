// Package schedule tracks the time-based schedules registered by agent
// instances so they can be dropped when an instance stops.
package schedule

import (
	"sync"

	"github.com/randalmurphal/streamcore/pkg/streamcore/registry"
)

// Key identifies the owner of a schedule.
type Key struct {
	StatementID     int64
	AgentInstanceID int
}

// Callback is a scheduled action.
type Callback func()

type entry struct {
	mu        sync.Mutex
	callbacks []Callback
}

// Directory maps (statement, agent instance) pairs to their schedules.
// Directory is safe for concurrent use.
type Directory struct {
	entries *registry.Registry[Key, *entry]
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		entries: registry.New[Key, *entry](),
	}
}

// Add records a schedule for the agent instance.
func (d *Directory) Add(statementID int64, agentInstanceID int, cb Callback) {
	e := d.entries.GetOrCreate(Key{StatementID: statementID, AgentInstanceID: agentInstanceID}, func() *entry {
		return &entry{}
	})
	e.mu.Lock()
	e.callbacks = append(e.callbacks, cb)
	e.mu.Unlock()
}

// Remove drops every schedule of the agent instance.
// Returns false if none was registered.
func (d *Directory) Remove(statementID int64, agentInstanceID int) bool {
	_, ok := d.entries.Remove(Key{StatementID: statementID, AgentInstanceID: agentInstanceID})
	return ok
}

// Lookup returns a copy of the schedules of the agent instance.
func (d *Directory) Lookup(statementID int64, agentInstanceID int) []Callback {
	e, ok := d.entries.Get(Key{StatementID: statementID, AgentInstanceID: agentInstanceID})
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Callback(nil), e.callbacks...)
}

// Len returns the number of agent instances holding schedules.
func (d *Directory) Len() int {
	return d.entries.Len()
}
