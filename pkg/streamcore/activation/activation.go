// Package activation creates and tears down the event-source wiring of a
// statement's streams.
//
// A stream is a filter subscription whose matches fan out to the views
// attached to it. Streams of the same agent instance that read the same
// source in a join share one subscription; the subscription is reference
// counted and removed from the filter index when the last sibling stream
// deactivates.
package activation

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
)

// ErrStreamNotActive indicates a drop for a stream that is not active.
var ErrStreamNotActive = errors.New("stream not active")

// Target is the agent instance a stream is activated for.
type Target interface {
	StatementID() int64
	AgentInstanceID() int

	// RegisterFilter installs cb in the filter index on behalf of the
	// agent instance and returns a function removing it.
	RegisterFilter(spec filter.Spec, cb filter.Callback) (unregister func(), err error)
}

// Sink receives the events a stream produces.
type Sink interface {
	Update(newEvents, oldEvents []filter.Event)
}

// Stream fans filter matches out to its sinks.
type Stream struct {
	spec filter.Spec

	mu    sync.RWMutex
	sinks []Sink
}

// Spec returns the source description of the stream.
func (s *Stream) Spec() filter.Spec {
	return s.spec
}

// AddView attaches a sink.
func (s *Stream) AddView(v Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, v)
}

// RemoveView detaches a sink. Returns false if it was not attached.
func (s *Stream) RemoveView(v Sink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.sinks {
		if existing == v {
			s.sinks = append(s.sinks[:i:i], s.sinks[i+1:]...)
			return true
		}
	}
	return false
}

// Views returns the number of attached sinks.
func (s *Stream) Views() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}

// MatchFound implements filter.Callback.
func (s *Stream) MatchFound(evt filter.Event) error {
	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()

	batch := []filter.Event{evt}
	for _, sink := range sinks {
		sink.Update(batch, nil)
	}
	return nil
}

type streamKey struct {
	statementID     int64
	agentInstanceID int
	spec            string
	subselect       bool
	unique          uint64
}

type streamEntry struct {
	stream     *Stream
	refs       int
	unregister func()
}

// Service owns the active streams of all statements.
// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	streams map[streamKey]*streamEntry
	seq     atomic.Uint64
}

// NewService creates an empty stream service.
func NewService() *Service {
	return &Service{
		streams: make(map[streamKey]*streamEntry),
	}
}

// createStream returns the stream for key, registering a new filter
// subscription when none is active.
func (s *Service) createStream(key streamKey, target Target, spec filter.Spec) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.streams[key]; ok {
		e.refs++
		return e.stream, nil
	}

	stream := &Stream{spec: spec}
	unregister, err := target.RegisterFilter(spec, stream)
	if err != nil {
		return nil, fmt.Errorf("register filter for %s: %w", spec.EventType, err)
	}
	s.streams[key] = &streamEntry{stream: stream, refs: 1, unregister: unregister}
	return stream, nil
}

// dropStream releases one reference and unregisters the subscription at zero.
func (s *Service) dropStream(key streamKey) error {
	s.mu.Lock()
	e, ok := s.streams[key]
	if !ok {
		s.mu.Unlock()
		return ErrStreamNotActive
	}
	e.refs--
	if e.refs > 0 {
		s.mu.Unlock()
		return nil
	}
	delete(s.streams, key)
	s.mu.Unlock()

	e.unregister()
	return nil
}

// RefCount returns the number of activations sharing the subscription of
// spec for the agent instance, or 0 when none is active.
func (s *Service) RefCount(statementID int64, agentInstanceID int, spec filter.Spec) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.streams[streamKey{statementID: statementID, agentInstanceID: agentInstanceID, spec: spec.Key()}]; ok {
		return e.refs
	}
	return 0
}

// DropInstance tears down every subscription still held by one agent
// instance, whatever its reference count. It returns how many were dropped.
// Activation handles for those subscriptions report ErrStreamNotActive
// when stopped afterwards.
func (s *Service) DropInstance(statementID int64, agentInstanceID int) int {
	s.mu.Lock()
	var dropped []*streamEntry
	for key, e := range s.streams {
		if key.statementID == statementID && key.agentInstanceID == agentInstanceID {
			dropped = append(dropped, e)
			delete(s.streams, key)
		}
	}
	s.mu.Unlock()

	for _, e := range dropped {
		e.unregister()
	}
	return len(dropped)
}

// Len returns the number of active subscriptions.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}
