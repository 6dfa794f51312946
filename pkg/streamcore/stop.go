package streamcore

import (
	"context"

	"go.uber.org/multierr"

	"github.com/randalmurphal/streamcore/pkg/streamcore/lock"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
)

type stopConfig struct {
	statementStop bool
	held          *lock.Guard
}

// StopOption configures Runtime.Stop.
type StopOption func(*stopConfig)

// StatementStop marks the stop as part of stopping the whole statement.
// Final views are then not told their partition terminated, and no
// partition snapshot is saved.
func StatementStop() StopOption {
	return func(c *stopConfig) {
		c.statementStop = true
	}
}

// WithHeldLock tells Stop the caller already holds the instance's write
// lock through guard. Stop neither acquires nor releases it.
func WithHeldLock(guard *lock.Guard) StopOption {
	return func(c *stopConfig) {
		c.held = guard
	}
}

// Stop tears down an agent instance. It never fails: each step runs even
// if an earlier one failed, and failures are logged.
//
// Once Stop returns, no dispatch invokes a callback of the instance.
// Stopping an already stopped instance does nothing.
func (r *Runtime) Stop(ctx context.Context, ai *AgentInstance, opts ...StopOption) {
	if ai == nil {
		return
	}
	cfg := stopConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	aic := ai.context
	stmt, handle := aic.statement, aic.handle
	id := handle.agentInstanceID

	ctx, span := r.spans.StartLifecycleSpan(ctx, observability.SpanStop, stmt.name, id)

	if cfg.held == nil {
		guard := handle.lock.Acquire()
		defer guard.Release()
	}
	defer aic.tableLocks.ReleaseAll()

	if handle.IsDestroyed() {
		r.spans.EndSpanWithError(span, nil)
		return
	}
	defer func() {
		handle.destroy()
		stmt.release(id)
	}()

	var errs error
	if !cfg.statementStop {
		if t, ok := ai.finalView.(Terminable); ok {
			errs = multierr.Append(errs, r.trap(aic, "terminated", func() error {
				t.Terminated()
				return nil
			}))
		}
		if err := safeCall(stmt.name, id, "snapshot", func() error {
			return r.saveSnapshot(ai)
		}); err != nil {
			observability.LogSnapshotError(r.logger, stmt.name, aic.partition(), "save", err)
			errs = multierr.Append(errs, err)
		}
	}

	errs = multierr.Append(errs, r.trap(aic, "stop callback", func() error {
		return ai.stopCallback(ctx, cfg.statementStop)
	}))
	errs = multierr.Append(errs, r.release(aic, ai.finalView))

	handle.destroy()

	if stmt.hooks != nil {
		errs = multierr.Append(errs, r.trap(aic, "extension", func() error {
			return stmt.hooks.EndContextPartition(ctx, id)
		}))
	}

	failures := len(multierr.Errors(errs))
	r.metrics.RecordStop(ctx, stmt.name, failures)
	observability.LogAgentInstanceStop(r.logger, stmt.name, id, cfg.statementStop)
	r.spans.EndSpanWithError(span, errs)
}

// StopAgentInstances stops each instance in order with the same options.
func (r *Runtime) StopAgentInstances(ctx context.Context, instances []*AgentInstance, opts ...StopOption) {
	for _, ai := range instances {
		r.Stop(ctx, ai, opts...)
	}
}

// StopStatement stops every live agent instance of stmt as a statement stop.
func (r *Runtime) StopStatement(ctx context.Context, stmt *Statement) {
	if stmt == nil {
		return
	}
	r.StopAgentInstances(ctx, stmt.AgentInstances(), StatementStop())
}

// release detaches an agent instance from everything it was wired into
// at start. Each step is trapped, so a failing step does not keep the
// instance attached to the rest.
func (r *Runtime) release(aic *AgentInstanceContext, finalView Viewable) error {
	stmt, id := aic.statement, aic.handle.agentInstanceID

	var errs error
	if finalView != nil {
		errs = multierr.Append(errs, r.trap(aic, "remove view", func() error {
			finalView.RemoveView(stmt.merge)
			return nil
		}))
	}
	errs = multierr.Append(errs, r.trap(aic, "streams", func() error {
		r.streams.DropInstance(stmt.id, id)
		return nil
	}))
	errs = multierr.Append(errs, r.trap(aic, "filters", aic.removeFilters))
	errs = multierr.Append(errs, r.trap(aic, "schedule", func() error {
		r.schedules.Remove(stmt.id, id)
		return nil
	}))
	errs = multierr.Append(errs, r.trap(aic, "resolution", func() error {
		stmt.resolution.DestroyedAgentInstance(id)
		return nil
	}))
	errs = multierr.Append(errs, r.trap(aic, "deassign", func() error {
		stmt.registry.deassign(id)
		return nil
	}))
	return errs
}

// trap runs one teardown step, logging every failure it returns.
func (r *Runtime) trap(aic *AgentInstanceContext, step string, fn func() error) error {
	stmt, id := aic.statement.name, aic.handle.agentInstanceID
	err := safeCall(stmt, id, step, fn)
	for _, e := range multierr.Errors(err) {
		observability.LogStopFailure(r.logger, stmt, id, step, e)
	}
	return err
}
