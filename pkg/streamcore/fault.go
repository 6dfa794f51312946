package streamcore

import (
	"context"
	"maps"
	"slices"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
)

// HandleFilterFault re-evaluates evt for agent instances whose filters
// became visible after the event was matched at version. Only lists
// allocated strictly after version are re-evaluated, so instances that
// were already live and saw the event through the index are not
// delivered to twice. Lists are visited in key order.
func (r *Runtime) HandleFilterFault(ctx context.Context, evt filter.Event, version int64, lists map[int]*AgentInstanceList) int {
	reevaluated := 0
	for _, key := range slices.Sorted(maps.Keys(lists)) {
		list := lists[key]
		if list == nil || list.FilterVersionAfterAllocation <= version {
			continue
		}
		r.Dispatch(ctx, evt, list.AgentInstances, nil)
		reevaluated++
	}

	eventType := ""
	if evt != nil {
		eventType = evt.Type()
	}
	r.metrics.RecordFilterFault(ctx, reevaluated)
	observability.LogFilterFault(r.logger, eventType, version, reevaluated)
	return reevaluated
}

// EvaluateFilterForStatement checks whether target is among the index
// entries of aic's statement matching evt. If it is not, the instance's
// internal dispatch runs instead; a failure there goes to the exception
// handler.
func (r *Runtime) EvaluateFilterForStatement(ctx context.Context, evt filter.Event, aic *AgentInstanceContext, target *HandleCallback) bool {
	matches := r.index.EvaluateStatement(evt, aic.StatementID())
	if slices.Contains(matches, target) {
		return true
	}

	h := aic.handle
	if err := safeCall(h.statement.name, h.agentInstanceID, "internal dispatch", func() error {
		return h.internalDispatch(ctx)
	}); err != nil {
		r.handleException(ctx, err, h, evt)
	}
	return false
}
