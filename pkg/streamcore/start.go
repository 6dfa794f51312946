package streamcore

import (
	"context"
	"time"

	"github.com/randalmurphal/streamcore/pkg/streamcore/lock"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
)

type startConfig struct {
	contextID      string
	singleInstance bool
	recovering     bool
}

// StartOption configures Runtime.Start.
type StartOption func(*startConfig)

// InContext records the id of the context the agent instance belongs to.
func InContext(contextID string) StartOption {
	return func(c *startConfig) {
		c.contextID = contextID
	}
}

// SingleInstance marks the statement as running in one unpartitioned
// context. The agent instance then shares the statement's default lock.
func SingleInstance() StartOption {
	return func(c *startConfig) {
		c.singleInstance = true
	}
}

// Recovering tells the factory the instance is being rebuilt after a restart.
func Recovering() StartOption {
	return func(c *startConfig) {
		c.recovering = true
	}
}

// Start creates and starts an agent instance of stmt.
//
// Start runs under the new instance's write lock. An event matched while
// start is in progress waits for the lock and is delivered once the
// instance is fully wired and its preloads have run. Start is
// transactional: if any step fails, the registry entries, merged output
// splice, filters, streams and schedules set up so far are released, the
// handle is destroyed and a *StartError is returned.
//
// Example:
//
//	ai, err := rt.Start(ctx, stmt, 1, streamcore.ContextProperties{"region": "eu"})
//	if err != nil {
//	    return err
//	}
//	defer rt.Stop(ctx, ai)
func (r *Runtime) Start(ctx context.Context, stmt *Statement, agentInstanceID int, props ContextProperties, opts ...StartOption) (ai *AgentInstance, err error) {
	if stmt == nil {
		return nil, ErrNilStatement
	}
	if stmt.factory == nil {
		return nil, &StartError{Statement: stmt.name, AgentInstanceID: agentInstanceID, Op: "new context", Err: ErrNilFactory}
	}

	cfg := startConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	stmt.bind(r)

	started := time.Now()
	done := observability.TimedOperation()
	ctx, span := r.spans.StartLifecycleSpan(ctx, observability.SpanStart, stmt.name, agentInstanceID)
	defer func() {
		r.spans.EndSpanWithError(span, err)
		r.metrics.RecordStart(ctx, stmt.name, time.Since(started), err)
		if err != nil {
			observability.LogAgentInstanceStartError(r.logger, stmt.name, agentInstanceID, err)
		} else {
			observability.LogAgentInstanceStart(r.logger, stmt.name, agentInstanceID, done())
		}
	}()

	if !stmt.reserve(agentInstanceID) {
		return nil, &StartError{Statement: stmt.name, AgentInstanceID: agentInstanceID, Op: "reserve", Err: ErrAgentInstanceExists}
	}

	var l lock.Lock
	if cfg.singleInstance {
		l = stmt.defaultLock
	} else {
		l = r.locks.Lock(stmt.name, stmt.annotations, stmt.stateless)
	}

	handle := newHandle(stmt, agentInstanceID, l)
	aic := newAgentInstanceContext(r, stmt, handle, cfg.contextID, props)
	instance := &AgentInstance{context: aic}
	handle.instance.Store(instance)

	guard := l.Acquire()
	defer guard.Release()
	defer aic.tableLocks.ReleaseAll()

	tx := &startTx{runtime: r, aic: aic}
	fail := func(op string, cause error) (*AgentInstance, error) {
		tx.unwind(ctx)
		return nil, &StartError{Statement: stmt.name, AgentInstanceID: agentInstanceID, Op: op, Err: cause}
	}

	var result *StartResult
	if err := safeCall(stmt.name, agentInstanceID, "new context", func() error {
		var ferr error
		result, ferr = stmt.factory.NewContext(ctx, aic, cfg.recovering)
		return ferr
	}); err != nil {
		tx.result = result
		return fail("new context", err)
	}
	if result == nil {
		return fail("new context", ErrNilStartResult)
	}
	tx.result = result
	if result.FinalView == nil {
		return fail("new context", ErrNilFinalView)
	}

	if err := safeCall(stmt.name, agentInstanceID, "splice", func() error {
		result.FinalView.AddView(stmt.merge)
		return nil
	}); err != nil {
		return fail("splice", err)
	}
	tx.spliced = true

	if err := stmt.registry.assign(agentInstanceID, result); err != nil {
		return fail("assign", err)
	}

	for _, preload := range result.Preloads {
		if preload == nil {
			continue
		}
		if err := safeCall(stmt.name, agentInstanceID, "preload", func() error {
			return preload(ctx)
		}); err != nil {
			return fail("preload", err)
		}
	}

	if stmt.hooks != nil {
		if err := safeCall(stmt.name, agentInstanceID, "extension", func() error {
			return stmt.hooks.StartContextPartition(ctx, result, agentInstanceID)
		}); err != nil {
			return fail("extension", err)
		}
	}

	instance.finalView = result.FinalView
	instance.stopCallback = aic.stopCallback(result.StopCallback)
	instance.result = result
	instance.filterVersionAfterAllocation = r.index.Version()
	stmt.commit(agentInstanceID, instance)
	return instance, nil
}

// startTx undoes a partially completed start. It runs under the
// instance's write lock.
type startTx struct {
	runtime *Runtime
	aic     *AgentInstanceContext
	result  *StartResult
	spliced bool
}

func (tx *startTx) unwind(ctx context.Context) {
	r, aic := tx.runtime, tx.aic
	stmt, id := aic.statement, aic.handle.agentInstanceID
	defer func() {
		aic.handle.destroy()
		stmt.release(id)
	}()

	var explicit StopCallback
	if tx.result != nil {
		explicit = tx.result.StopCallback
	}
	_ = r.trap(aic, "unwind stop callback", func() error {
		return aic.stopCallback(explicit)(ctx, false)
	})

	var spliced Viewable
	if tx.spliced {
		spliced = tx.result.FinalView
	}
	_ = r.release(aic, spliced)
}
