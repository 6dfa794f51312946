package filter

import (
	"strings"
	"sync"
)

// Callback receives events whose filter matched.
type Callback interface {
	// MatchFound is invoked with the matching event.
	MatchFound(evt Event) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(evt Event) error

// MatchFound calls f(evt).
func (f CallbackFunc) MatchFound(evt Event) error {
	return f(evt)
}

// Handle is a registered filter entry. Every handle is owned by a statement.
type Handle interface {
	StatementID() int64
}

// Spec describes which events a filter entry accepts.
type Spec struct {
	// EventType restricts matches to one event type. Required.
	EventType string
	// Expression is an optional predicate, see Compile.
	Expression string
}

// Key returns a normalized identity for the spec. Two specs with equal
// keys describe the same event source.
func (s Spec) Key() string {
	return s.EventType + "|" + strings.Join(strings.Fields(s.Expression), " ")
}

// Index returns the filter entries matching an event.
// Implementations must be safe for concurrent use.
type Index[H Handle] interface {
	// Evaluate returns the handles of all statements whose filter matches.
	Evaluate(evt Event) []H

	// EvaluateStatement returns only the matching handles owned by statementID.
	EvaluateStatement(evt Event, statementID int64) []H

	// Match is Evaluate together with the index version the match was
	// computed against.
	Match(evt Event) ([]H, int64)

	// Version returns the current index version. It increases on every
	// registration change.
	Version() int64
}

// MutableIndex is an Index that accepts registrations.
type MutableIndex[H Handle] interface {
	Index[H]

	// Add registers h under spec. It returns a function removing the
	// entry, safe to call more than once, and the index version at which
	// the entry became visible to Match.
	Add(spec Spec, h H) (remove func(), version int64, err error)
}

type indexEntry[H Handle] struct {
	id        uint64
	predicate Predicate
	handle    H
}

// MemoryIndex is an in-memory MutableIndex keyed by event type.
type MemoryIndex[H Handle] struct {
	mu      sync.RWMutex
	byType  map[string][]indexEntry[H]
	version int64
	nextID  uint64
}

var _ MutableIndex[Handle] = (*MemoryIndex[Handle])(nil)

// NewMemoryIndex creates an empty index at version 0.
func NewMemoryIndex[H Handle]() *MemoryIndex[H] {
	return &MemoryIndex[H]{
		byType: make(map[string][]indexEntry[H]),
	}
}

// Add compiles the spec expression and registers h.
func (m *MemoryIndex[H]) Add(spec Spec, h H) (func(), int64, error) {
	pred, err := Compile(spec.Expression)
	if err != nil {
		return nil, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.byType[spec.EventType] = append(m.byType[spec.EventType], indexEntry[H]{
		id:        id,
		predicate: pred,
		handle:    h,
	})
	m.version++

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(spec.EventType, id) })
	}, m.version, nil
}

func (m *MemoryIndex[H]) remove(eventType string, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.byType[eventType]
	for i, e := range entries {
		if e.id == id {
			m.byType[eventType] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(m.byType[eventType]) == 0 {
		delete(m.byType, eventType)
	}
	m.version++
}

// Evaluate implements Index.
func (m *MemoryIndex[H]) Evaluate(evt Event) []H {
	matches, _ := m.Match(evt)
	return matches
}

// EvaluateStatement implements Index.
func (m *MemoryIndex[H]) EvaluateStatement(evt Event, statementID int64) []H {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []H
	for _, e := range m.byType[evt.Type()] {
		if e.handle.StatementID() == statementID && e.predicate.Matches(evt) {
			matches = append(matches, e.handle)
		}
	}
	return matches
}

// Match implements Index.
func (m *MemoryIndex[H]) Match(evt Event) ([]H, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []H
	for _, e := range m.byType[evt.Type()] {
		if e.predicate.Matches(evt) {
			matches = append(matches, e.handle)
		}
	}
	return matches, m.version
}

// Version implements Index.
func (m *MemoryIndex[H]) Version() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Len returns the number of registered entries.
func (m *MemoryIndex[H]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, entries := range m.byType {
		n += len(entries)
	}
	return n
}
