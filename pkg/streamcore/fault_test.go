package streamcore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
)

func TestHandleFilterFault(t *testing.T) {
	logger, logs := newCapturedLogger()
	rt := newTestRuntime(t, WithLogger(logger))
	rec := &recorder{}
	stmt := NewStatement(1, "partitioned", tradeFactory(rec))
	a := mustStart(t, rt, stmt, 1, nil)
	b := mustStart(t, rt, stmt, 2, nil)
	c := mustStart(t, rt, stmt, 3, nil)

	lists := map[int]*AgentInstanceList{
		1: {FilterVersionAfterAllocation: 3, AgentInstances: []*AgentInstance{a}},
		2: {FilterVersionAfterAllocation: 7, AgentInstances: []*AgentInstance{b}},
		3: {FilterVersionAfterAllocation: 5, AgentInstances: []*AgentInstance{c}},
		4: nil,
	}

	n := rt.HandleFilterFault(context.Background(), trade("IBM", 1), 5, lists)

	assert.Equal(t, 1, n, "only lists allocated after the fault version are re-evaluated")
	deliveries := rec.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, 2, deliveries[0].Instance)

	records := logs.withMessage(t, "filter fault handled")
	require.Len(t, records, 1)
	assert.EqualValues(t, 1, records[0]["reevaluated"])
}

func TestHandleFilterFault_VisitsListsInKeyOrder(t *testing.T) {
	rt := newTestRuntime(t)
	rec := &recorder{}
	stmt := NewStatement(1, "partitioned", tradeFactory(rec))
	a := mustStart(t, rt, stmt, 1, nil)
	b := mustStart(t, rt, stmt, 2, nil)

	lists := map[int]*AgentInstanceList{
		9: NewAgentInstanceList(a),
		4: NewAgentInstanceList(b),
	}
	n := rt.HandleFilterFault(context.Background(), trade("IBM", 1), 0, lists)

	assert.Equal(t, 2, n)
	var order []int
	for _, d := range rec.all() {
		order = append(order, d.Instance)
	}
	assert.Equal(t, []int{2, 1}, order)
}

func TestFaultHandlerRecoversMissedEvent(t *testing.T) {
	const allocated = 5
	idx := newHookIndex()
	rt := newTestRuntime(t, WithFilterIndex(idx))
	rec := &recorder{}
	stmt := NewStatement(1, "late", tradeFactory(rec))

	ai := mustStart(t, rt, stmt, 1, nil)
	ai.Handle().version.Set(allocated)
	ai.filterVersionAfterAllocation = allocated
	ai.Context().SetFaultHandler(faultHandlerFunc(func(ctx context.Context, evt filter.Event, version int64) {
		rt.HandleFilterFault(ctx, evt, version, map[int]*AgentInstanceList{0: NewAgentInstanceList(ai)})
	}))

	idx.matchVersion.Store(allocated - 1)
	rt.ProcessEvent(context.Background(), trade("IBM", 1))

	assert.Equal(t, 1, rec.count(), "the fault handler re-delivers the skipped event")
}

type faultHandlerFunc func(ctx context.Context, evt filter.Event, version int64)

func (f faultHandlerFunc) HandleFilterFault(ctx context.Context, evt filter.Event, version int64) {
	f(ctx, evt, version)
}

func TestNewAgentInstanceList(t *testing.T) {
	older := &AgentInstance{filterVersionAfterAllocation: 2}
	newer := &AgentInstance{filterVersionAfterAllocation: 4}

	l := NewAgentInstanceList(older, newer)
	assert.Equal(t, int64(4), l.FilterVersionAfterAllocation)
	assert.Equal(t, []*AgentInstance{older, newer}, l.AgentInstances)

	assert.Equal(t, int64(0), NewAgentInstanceList().FilterVersionAfterAllocation)
}

func TestEvaluateFilterForStatement(t *testing.T) {
	exceptions := &exceptionRecorder{}
	rt := newTestRuntime(t, WithExceptionHandler(exceptions))
	rec := &recorder{}
	dispatchErr := error(nil)

	var ibm, msft *HandleCallback
	stmt := NewStatement(1, "symbols", FactoryFunc(func(_ context.Context, aic *AgentInstanceContext, _ bool) (*StartResult, error) {
		noop := filter.CallbackFunc(func(filter.Event) error { return nil })
		var err error
		if ibm, _, err = aic.RegisterFilterHandle(filter.Spec{EventType: "Trade", Expression: "symbol == 'IBM'"}, noop); err != nil {
			return nil, err
		}
		if msft, _, err = aic.RegisterFilterHandle(filter.Spec{EventType: "Trade", Expression: "symbol == 'MSFT'"}, noop); err != nil {
			return nil, err
		}
		aic.SetInternalDispatch(DispatchFunc(func(context.Context) error {
			rec.mark("dispatch")
			return dispatchErr
		}))
		return &StartResult{FinalView: NewOutputView()}, nil
	}))
	ai := mustStart(t, rt, stmt, 1, nil)
	ctx := context.Background()
	evt := trade("IBM", 1)

	assert.True(t, rt.EvaluateFilterForStatement(ctx, evt, ai.Context(), ibm))
	assert.Empty(t, rec.tags())

	assert.False(t, rt.EvaluateFilterForStatement(ctx, evt, ai.Context(), msft))
	assert.Equal(t, []string{"dispatch"}, rec.tags())

	dispatchErr = errors.New("flush failed")
	assert.False(t, rt.EvaluateFilterForStatement(ctx, evt, ai.Context(), msft))
	errs, owners := exceptions.failures()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], dispatchErr)
	assert.Equal(t, []string{"symbols"}, owners)

	assert.Same(t, ai.Handle(), ibm.Handle())
	assert.Equal(t, int64(1), ibm.StatementID())
	assert.NotNil(t, ibm.Callback())
}
