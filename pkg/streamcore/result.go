package streamcore

import (
	"context"

	"go.uber.org/multierr"
)

// Strategy is a per-agent-instance evaluation strategy produced by the
// factory: an aggregation, sub-select, prior or previous accessor, and so on.
type Strategy any

// SubselectStrategies are the strategies one sub-select plan node owns.
// Prior and Previous are nested in the sub-select and registered after it.
type SubselectStrategies struct {
	Strategy    Strategy
	Aggregation Strategy
	Prior       Strategy
	Previous    Strategy
}

// PreloadAction warms an agent instance before any event reaches it.
type PreloadAction func(ctx context.Context) error

// StopCallback releases resources of an agent instance. statementStop is
// true when the whole statement is stopping rather than one partition.
type StopCallback func(ctx context.Context, statementStop bool) error

// StartResult is what a Factory produces for one agent instance.
// Strategy maps are keyed by the identity of the plan node declaring them.
type StartResult struct {
	// FinalView is the end of the instance's view pipeline. It is spliced
	// into the statement's merged output.
	FinalView Viewable

	// StopCallback releases what the factory set up.
	StopCallback StopCallback

	Aggregation            Strategy
	Subselects             map[string]SubselectStrategies
	Prior                  map[string]Strategy
	Previous               map[string]Strategy
	MatchRecognizePrevious Strategy
	TableAccess            map[string]Strategy

	// Preloads run in order before Start returns.
	Preloads []PreloadAction
}

// ComposeStopCallback returns a StopCallback running each non-nil callback
// in order. A failing or panicking callback does not keep the rest from
// running; all failures are returned combined.
func ComposeStopCallback(callbacks ...StopCallback) StopCallback {
	return composeStop("", 0, callbacks)
}

func composeStop(statement string, agentInstanceID int, callbacks []StopCallback) StopCallback {
	var live []StopCallback
	for _, cb := range callbacks {
		if cb != nil {
			live = append(live, cb)
		}
	}
	return func(ctx context.Context, statementStop bool) error {
		var errs error
		for _, cb := range live {
			errs = multierr.Append(errs, safeCall(statement, agentInstanceID, "stop callback", func() error {
				return cb(ctx, statementStop)
			}))
		}
		return errs
	}
}
