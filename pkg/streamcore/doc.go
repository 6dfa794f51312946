/*
Package streamcore is the agent instance lifecycle and event dispatch core
of a continuous query engine.

# Overview

A Statement is a compiled continuous query. It runs as one or more agent
instances, one per context partition (for example one per value of a
partitioning key). The Runtime starts and stops agent instances and routes
incoming events from the filter index to the live instances whose filters
match, under each instance's own write lock.

The guarantees are:
  - an instance sees no event before its start, including preloads, completed
  - once Stop returns, no dispatch reaches the instance
  - matches of a self-joining statement for one event arrive as one batch
  - with prioritization, a preemptive instance that processed an event
    hides it from lower priority instances
  - a failing callback affects only its own instance

# Basic Usage

A Factory builds the view pipeline of each agent instance. It typically
activates streams through the AgentInstanceContext and returns a final view:

	factory := streamcore.FactoryFunc(func(ctx context.Context, aic *streamcore.AgentInstanceContext, recovering bool) (*streamcore.StartResult, error) {
	    out := streamcore.NewOutputView()
	    act, err := activation.NewStreamReuseActivator(aic.Streams(), filter.Spec{
	        EventType:  "Trade",
	        Expression: "symbol == 'IBM'",
	    }).Activate(aic, false, recovering)
	    if err != nil {
	        return nil, err
	    }
	    act.Stream.AddView(out)
	    return &streamcore.StartResult{
	        FinalView: out,
	        StopCallback: func(ctx context.Context, statementStop bool) error {
	            return act.Stop()
	        },
	    }, nil
	})

	rt, err := streamcore.NewRuntime(streamcore.WithLogger(logger))
	if err != nil {
	    return err
	}
	stmt := streamcore.NewStatement(1, "ibm-trades", factory)
	stmt.AddListener(listener)

	ai, err := rt.Start(ctx, stmt, 0, nil, streamcore.SingleInstance())
	if err != nil {
	    return err
	}
	rt.ProcessEvent(ctx, filter.NewEvent("Trade", map[string]any{"symbol": "IBM"}))
	rt.Stop(ctx, ai)

# Start and Stop

Start is transactional. If the factory, registry assignment, a preload or
an extension hook fails, everything set up so far is released and a
*StartError is returned. Stop never fails; each teardown step runs even if
an earlier one failed, and failures are logged.

A caller tearing down several instances atomically acquires their locks
itself and passes the guards with WithHeldLock.

# Filter Versions

Each handle records the filter index version after the instance last
removed a filter. Adding filters leaves it unchanged. A match made at an
older version is not current: ProcessEvent hands it to the handle's
FaultHandler, which normally calls HandleFilterFault for the instances it
allocated after the event was matched. Without a FaultHandler, entries
still registered are delivered and removed ones are skipped.

# Configuration

Engine settings load from YAML or JSON through package config and are
applied with WithEngineConfig:

	cfg, err := config.FromFile("engine.yaml")
	engine, err := config.EngineFrom(cfg)
	rt, err := streamcore.NewRuntime(streamcore.WithEngineConfig(engine))

# Observability

Logging uses slog. Metrics and tracing use OpenTelemetry and are off unless
enabled in the engine config or given with WithMetrics and WithTracing.
*/
package streamcore
