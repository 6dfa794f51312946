package activation

import (
	"sync/atomic"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
)

// Activation is the result of activating one stream.
type Activation struct {
	// Stream produces the events of the activated source.
	Stream *Stream

	// CanIterateUnbound reports whether the stream may be iterated without
	// a bounding window, which makes pull-based snapshot queries legal.
	CanIterateUnbound bool

	// Recovering is true when the activation restores a resilient statement.
	Recovering bool

	stop    func() error
	stopped atomic.Bool
}

// Stop deactivates the stream, releasing this activation's reference.
// Only the first call releases it; later calls return ErrStreamNotActive.
func (a *Activation) Stop() error {
	if !a.stopped.CompareAndSwap(false, true) {
		return ErrStreamNotActive
	}
	return a.stop()
}

// Activator creates stream activations for agent instances.
type Activator interface {
	Activate(target Target, isSubselect, isRecoveringResilient bool) (*Activation, error)
}

// StreamReuseActivator activates a filter stream, sharing the subscription
// between sibling join streams of the same agent instance.
type StreamReuseActivator struct {
	service           *Service
	spec              filter.Spec
	join              bool
	streamNum         int
	canIterateUnbound bool
}

// ActivatorOption configures a StreamReuseActivator.
type ActivatorOption func(*StreamReuseActivator)

// WithJoin marks the stream as one side of a join. Join streams of one
// agent instance that read the same source share a subscription.
func WithJoin() ActivatorOption {
	return func(a *StreamReuseActivator) {
		a.join = true
	}
}

// WithStreamNum sets the position of the stream in the statement.
func WithStreamNum(n int) ActivatorOption {
	return func(a *StreamReuseActivator) {
		a.streamNum = n
	}
}

// WithUnboundIteration allows iterating the stream without a window.
func WithUnboundIteration() ActivatorOption {
	return func(a *StreamReuseActivator) {
		a.canIterateUnbound = true
	}
}

// NewStreamReuseActivator creates an activator for spec.
func NewStreamReuseActivator(svc *Service, spec filter.Spec, opts ...ActivatorOption) *StreamReuseActivator {
	a := &StreamReuseActivator{
		service: svc,
		spec:    spec,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StreamNum returns the position of the stream in the statement.
func (a *StreamReuseActivator) StreamNum() int {
	return a.streamNum
}

// Activate implements Activator.
func (a *StreamReuseActivator) Activate(target Target, isSubselect, isRecoveringResilient bool) (*Activation, error) {
	key := streamKey{
		statementID:     target.StatementID(),
		agentInstanceID: target.AgentInstanceID(),
		spec:            a.spec.Key(),
		subselect:       isSubselect,
	}
	if !a.join || isSubselect {
		key.unique = a.service.seq.Add(1)
	}

	stream, err := a.service.createStream(key, target, a.spec)
	if err != nil {
		return nil, err
	}

	return &Activation{
		Stream:            stream,
		CanIterateUnbound: a.canIterateUnbound,
		Recovering:        isRecoveringResilient,
		stop: func() error {
			return a.service.dropStream(key)
		},
	}, nil
}
