package streamcore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/streamcore/pkg/streamcore/config"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
	"github.com/randalmurphal/streamcore/pkg/streamcore/snapshot"
)

func TestNewRuntime_Defaults(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := uuid.Parse(rt.ID())
	assert.NoError(t, err)
	assert.False(t, rt.Prioritized())
	assert.Nil(t, rt.Snapshots())
	assert.NotNil(t, rt.Index())
	assert.NotNil(t, rt.Streams())
	assert.NotNil(t, rt.Schedules())
	assert.IsType(t, observability.NoopMetrics{}, rt.metrics)
	assert.IsType(t, observability.NoopSpanManager{}, rt.spans)
	assert.IsType(t, LoggingExceptionHandler{}, rt.exceptions)
	assert.Equal(t, config.DefaultEngine(), rt.engine)

	other := newTestRuntime(t)
	assert.NotEqual(t, rt.ID(), other.ID())
}

func TestNewRuntime_EngineConfig(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
engine:
  prioritized: true
  locking:
    statelessNoLock: true
  resolution:
    ttl: 30s
  metrics: true
  tracing: true
  snapshots: ":memory:"
`))
	require.NoError(t, err)
	engine, err := config.EngineFrom(cfg)
	require.NoError(t, err)

	rt := newTestRuntime(t, WithEngineConfig(engine))

	assert.True(t, rt.Prioritized())
	assert.Equal(t, 30*time.Second, rt.engine.ResolutionTTL)
	assert.NotEqual(t, observability.NoopMetrics{}, rt.metrics)
	assert.NotEqual(t, observability.NoopSpanManager{}, rt.spans)
	require.IsType(t, &snapshot.SQLiteStore{}, rt.Snapshots())
	require.NoError(t, rt.Snapshots().Save("s", "p", []byte("x")))

	require.NoError(t, rt.Close())
	assert.ErrorIs(t, rt.Snapshots().Save("s", "p", []byte("y")), snapshot.ErrStoreClosed)
}

func TestNewRuntime_OptionOrder(t *testing.T) {
	rt := newTestRuntime(t, WithEngineConfig(config.Engine{Prioritized: true}), WithPrioritized(false))
	assert.False(t, rt.Prioritized())

	rt = newTestRuntime(t, WithPrioritized(true), WithEngineConfig(config.DefaultEngine()))
	assert.False(t, rt.Prioritized(), "engine config applied later wins")
}

func TestNewRuntime_InvalidSnapshotPath(t *testing.T) {
	_, err := NewRuntime(WithEngineConfig(config.Engine{SnapshotPath: "/nonexistent/path/db.sqlite"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open snapshot store")
}

func TestNewRuntime_CallerOwnsSnapshotStore(t *testing.T) {
	store := snapshot.NewMemoryStore()
	rt, err := NewRuntime(WithSnapshotStore(store), WithEngineConfig(config.Engine{SnapshotPath: ":memory:"}))
	require.NoError(t, err)

	assert.Same(t, store, rt.Snapshots())
	require.NoError(t, rt.Close())
	assert.NoError(t, store.Save("s", "p", []byte("x")), "runtime does not close a store it was given")
}

func TestRuntime_StatementBoundOnce(t *testing.T) {
	rt := newTestRuntime(t, WithEngineConfig(config.Engine{ResolutionTTL: time.Minute}))
	stmt := NewStatement(1, "bound", tradeFactory(nil))

	a := mustStart(t, rt, stmt, 1, nil)
	svc := stmt.Resolution()
	require.NotNil(t, svc)
	rt.Stop(context.Background(), a)
	mustStart(t, rt, stmt, 2, nil)
	assert.Same(t, svc, stmt.Resolution())
}
