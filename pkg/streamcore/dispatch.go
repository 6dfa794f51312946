package streamcore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
)

// pendingMatch accumulates the callbacks one agent instance matched for
// one event. It holds either a single callback or a batch.
type pendingMatch struct {
	instance *AgentInstance
	single   *HandleCallback
	batch    []*HandleCallback
}

func (p *pendingMatch) add(cb *HandleCallback) {
	switch {
	case p.single == nil && p.batch == nil:
		p.single = cb
	case p.batch == nil:
		p.batch = []*HandleCallback{p.single, cb}
		p.single = nil
	default:
		p.batch = append(p.batch, cb)
	}
}

func (p *pendingMatch) callbacks() []*HandleCallback {
	if p.batch != nil {
		return p.batch
	}
	return []*HandleCallback{p.single}
}

// compareAgentInstances orders by priority descending, then statement id,
// then agent instance id.
func compareAgentInstances(a, b *AgentInstance) int {
	ha, hb := a.context.handle, b.context.handle
	if c := cmp.Compare(hb.descriptor.Priority, ha.descriptor.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(ha.StatementID(), hb.StatementID()); c != 0 {
		return c
	}
	return cmp.Compare(ha.agentInstanceID, hb.agentInstanceID)
}

// ProcessEvent routes evt to every live agent instance whose filters match.
//
// A match made at an index version older than the handle's filter version
// is not current: the instance removed a filter after the match was made.
// It is handed to the handle's FaultHandler, if any. Without one, entries
// that are still registered are delivered and removed ones are skipped.
// Destroyed instances are never current.
func (r *Runtime) ProcessEvent(ctx context.Context, evt filter.Event) {
	matches, version := r.index.Match(evt)
	if len(matches) == 0 {
		return
	}

	started := time.Now()
	ctx, span := r.spans.StartDispatchSpan(ctx, evt.Type(), len(matches))
	defer func() {
		r.metrics.RecordDispatch(ctx, len(matches), time.Since(started))
		r.spans.EndSpanWithError(span, nil)
	}()

	live := make([]*HandleCallback, 0, len(matches))
	var faulted []*AgentInstanceHandle
	for _, cb := range matches {
		h := cb.handle
		if h.IsDestroyed() {
			continue
		}
		if !h.version.IsCurrent(version) {
			if h.faultHandler() != nil {
				if !slices.Contains(faulted, h) {
					faulted = append(faulted, h)
				}
				continue
			}
			if cb.removed.Load() {
				observability.LogStaleMatch(r.logger, h.statement.name, h.agentInstanceID, evt.Type(), version)
				continue
			}
		}
		live = append(live, cb)
	}

	r.route(ctx, evt, live, func(cb *HandleCallback) *AgentInstance {
		return cb.handle.instance.Load()
	})

	for _, h := range faulted {
		fh := h.faultHandler()
		if err := safeCall(h.statement.name, h.agentInstanceID, "filter fault", func() error {
			fh.HandleFilterFault(ctx, evt, version)
			return nil
		}); err != nil {
			r.handleException(ctx, err, h, evt)
		}
	}
}

// Dispatch evaluates evt against the filter index and delivers the
// matches that belong to the given agent instances. Events of the
// optional triggering pattern are evaluated after evt, in key order.
//
// Dispatch is used when agent instances are created in response to an
// event and must see that event even though it was matched before they
// existed.
func (r *Runtime) Dispatch(ctx context.Context, evt filter.Event, instances []*AgentInstance, pattern map[string][]filter.Event) {
	if evt != nil {
		r.dispatchOne(ctx, evt, instances)
	}
	for _, key := range slices.Sorted(maps.Keys(pattern)) {
		for _, e := range pattern[key] {
			if e != nil {
				r.dispatchOne(ctx, e, instances)
			}
		}
	}
}

func (r *Runtime) dispatchOne(ctx context.Context, evt filter.Event, instances []*AgentInstance) {
	matches := r.index.Evaluate(evt)
	if len(matches) == 0 || len(instances) == 0 {
		return
	}

	started := time.Now()
	ctx, span := r.spans.StartDispatchSpan(ctx, evt.Type(), len(matches))
	defer func() {
		r.metrics.RecordDispatch(ctx, len(matches), time.Since(started))
		r.spans.EndSpanWithError(span, nil)
	}()

	if len(instances) == 1 && len(matches) == 1 {
		if ai := instances[0]; matches[0].handle == ai.context.handle {
			r.process(ctx, ai, matches, evt)
		}
		return
	}

	byHandle := make(map[*AgentInstanceHandle]*AgentInstance, len(instances))
	for _, ai := range instances {
		byHandle[ai.context.handle] = ai
	}
	r.route(ctx, evt, matches, func(cb *HandleCallback) *AgentInstance {
		return byHandle[cb.handle]
	})
}

// route delivers matches to the agent instances resolve maps them to.
//
// Matches of self-joining statements, and all matches when the runtime is
// prioritized, are accumulated per agent instance and delivered as one
// batch after the other matches. Prioritized batches run in priority
// order; a preemptive instance that processed the event ends the pass.
func (r *Runtime) route(ctx context.Context, evt filter.Event, matches []*HandleCallback, resolve func(*HandleCallback) *AgentInstance) {
	var order []*pendingMatch
	pending := make(map[*AgentInstance]*pendingMatch)

	for _, cb := range matches {
		ai := resolve(cb)
		if ai == nil {
			continue
		}
		if cb.handle.descriptor.CanSelfJoin || r.prioritized {
			p, ok := pending[ai]
			if !ok {
				p = &pendingMatch{instance: ai}
				pending[ai] = p
				order = append(order, p)
			}
			p.add(cb)
			continue
		}
		r.process(ctx, ai, []*HandleCallback{cb}, evt)
	}

	if r.prioritized {
		slices.SortStableFunc(order, func(a, b *pendingMatch) int {
			return compareAgentInstances(a.instance, b.instance)
		})
	}

	for i, p := range order {
		delivered := r.process(ctx, p.instance, p.callbacks(), evt)
		h := p.instance.context.handle
		if r.prioritized && delivered && h.descriptor.Preemptive {
			skipped := len(order) - i - 1
			if skipped > 0 {
				r.metrics.RecordPreemption(ctx, h.statement.name)
				r.spans.AddSpanEvent(ctx, "preempted",
					attribute.String("statement", h.statement.name),
					attribute.Int("skipped", skipped),
				)
				observability.LogPreemption(r.logger, h.statement.name, h.agentInstanceID, skipped)
			}
			return
		}
	}
}

// process delivers callbacks to one agent instance under its write lock,
// then runs its internal dispatch. It reports false when the instance was
// already destroyed or none of the callbacks belong to it.
func (r *Runtime) process(ctx context.Context, ai *AgentInstance, callbacks []*HandleCallback, evt filter.Event) bool {
	aic := ai.context
	h := aic.handle

	guard := h.lock.Acquire()
	defer guard.Release()
	defer aic.tableLocks.ReleaseAll()

	if h.IsDestroyed() {
		return false
	}

	delivered := false
	err := safeCall(h.statement.name, h.agentInstanceID, "dispatch", func() error {
		for _, cb := range callbacks {
			if cb.handle != h || cb.removed.Load() {
				continue
			}
			delivered = true
			if err := cb.callback.MatchFound(evt); err != nil {
				return err
			}
		}
		if !delivered {
			return nil
		}
		return h.internalDispatch(ctx)
	})
	if err != nil {
		r.handleException(ctx, err, h, evt)
	}
	return delivered
}
