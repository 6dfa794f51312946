// Package filter provides the event model, filter versions and the
// versioned filter index consulted by the dispatch router.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Event is an immutable event flowing through the engine.
type Event interface {
	// ID returns the unique event identifier.
	ID() string

	// Type returns the event type name used for index lookups.
	Type() string

	// Get returns the named property value and whether it exists.
	Get(property string) (any, bool)
}

// MapEvent is an Event backed by a property map.
type MapEvent struct {
	id    string
	typ   string
	props map[string]any
}

// NewEvent creates an event of the given type with a generated ID.
// The property map is copied.
func NewEvent(eventType string, props map[string]any) *MapEvent {
	copied := make(map[string]any, len(props))
	for k, v := range props {
		copied[k] = v
	}
	return &MapEvent{
		id:    uuid.New().String(),
		typ:   eventType,
		props: copied,
	}
}

// ID returns the event identifier.
func (e *MapEvent) ID() string {
	return e.id
}

// Type returns the event type.
func (e *MapEvent) Type() string {
	return e.typ
}

// Get returns a property value.
func (e *MapEvent) Get(property string) (any, bool) {
	v, ok := e.props[property]
	return v, ok
}

// String renders the event as type{k=v,...} with sorted keys.
func (e *MapEvent) String() string {
	keys := make([]string, 0, len(e.props))
	for k := range e.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.typ)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, e.props[k])
	}
	b.WriteByte('}')
	return b.String()
}
