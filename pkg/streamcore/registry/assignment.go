package registry

import (
	"errors"
	"fmt"
)

// ErrAlreadyAssigned indicates a strategy is already assigned to the
// agent instance.
var ErrAlreadyAssigned = errors.New("strategy already assigned")

// Assignment maps agent-instance ids to the strategy object each agent
// instance owns for one query-plan node. The map is shared by all agent
// instances of a statement; every entry belongs to exactly one instance.
type Assignment[S any] struct {
	name    string
	entries *Registry[int, S]
}

// NewAssignment creates an empty assignment map. name appears in errors.
func NewAssignment[S any](name string) *Assignment[S] {
	return &Assignment[S]{
		name:    name,
		entries: New[int, S](),
	}
}

// Name returns the assignment name.
func (a *Assignment[S]) Name() string {
	return a.name
}

// Assign binds strategy to agentInstanceID.
// Returns ErrAlreadyAssigned if the id already owns an entry.
func (a *Assignment[S]) Assign(agentInstanceID int, strategy S) error {
	if !a.entries.RegisterIfAbsent(agentInstanceID, strategy) {
		return fmt.Errorf("%s: agent instance %d: %w", a.name, agentInstanceID, ErrAlreadyAssigned)
	}
	return nil
}

// Deassign removes the entry of agentInstanceID.
// Returns false if there was none.
func (a *Assignment[S]) Deassign(agentInstanceID int) bool {
	_, ok := a.entries.Remove(agentInstanceID)
	return ok
}

// Lookup returns the strategy of agentInstanceID.
func (a *Assignment[S]) Lookup(agentInstanceID int) (S, bool) {
	return a.entries.Get(agentInstanceID)
}

// Has reports whether agentInstanceID owns an entry.
func (a *Assignment[S]) Has(agentInstanceID int) bool {
	return a.entries.Has(agentInstanceID)
}

// Len returns the number of assigned agent instances.
func (a *Assignment[S]) Len() int {
	return a.entries.Len()
}
