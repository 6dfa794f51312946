package streamcore

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/streamcore/pkg/streamcore/activation"
	"github.com/randalmurphal/streamcore/pkg/streamcore/config"
	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
	"github.com/randalmurphal/streamcore/pkg/streamcore/lock"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
	"github.com/randalmurphal/streamcore/pkg/streamcore/schedule"
	"github.com/randalmurphal/streamcore/pkg/streamcore/snapshot"
)

// Runtime starts and stops agent instances and routes events to them.
// It is safe for concurrent use.
type Runtime struct {
	id          string
	engine      config.Engine
	prioritized bool
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	index       filter.MutableIndex[*HandleCallback]
	locks       lock.Factory
	snapshots   snapshot.Store
	ownsStore   bool
	exceptions  ExceptionHandler
	streams     *activation.Service
	schedules   *schedule.Directory
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithEngineConfig applies engine settings. Options given after it
// override the matching settings.
func WithEngineConfig(e config.Engine) Option {
	return func(r *Runtime) {
		r.engine = e
		r.prioritized = e.Prioritized
	}
}

// WithPrioritized enables priority ordering and preemption.
// Default: false
func WithPrioritized(enabled bool) Option {
	return func(r *Runtime) {
		r.prioritized = enabled
	}
}

// WithLogger sets the logger. Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Without it, the runtime records
// OpenTelemetry metrics only when the engine config enables them.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// WithTracing sets the span manager. Without it, the runtime traces only
// when the engine config enables tracing.
func WithTracing(s observability.SpanManager) Option {
	return func(r *Runtime) {
		r.spans = s
	}
}

// WithFilterIndex replaces the in-memory filter index.
func WithFilterIndex(index filter.MutableIndex[*HandleCallback]) Option {
	return func(r *Runtime) {
		r.index = index
	}
}

// WithLockFactory replaces the lock factory built from the engine config.
func WithLockFactory(f lock.Factory) Option {
	return func(r *Runtime) {
		r.locks = f
	}
}

// WithSnapshotStore sets the store used for partition snapshots. The
// caller keeps ownership and closes it.
func WithSnapshotStore(store snapshot.Store) Option {
	return func(r *Runtime) {
		r.snapshots = store
	}
}

// WithExceptionHandler sets the runtime-wide dispatch exception handler.
// Default: LoggingExceptionHandler
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(r *Runtime) {
		r.exceptions = h
	}
}

// NewRuntime creates a runtime. When the engine config names a snapshot
// path and no store is given, a SQLite store is opened there and closed
// by Close.
func NewRuntime(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		id:        uuid.NewString(),
		engine:    config.DefaultEngine(),
		streams:   activation.NewService(),
		schedules: schedule.NewDirectory(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With(slog.String("runtime_id", r.id))

	if r.metrics == nil {
		r.metrics = observability.NoopMetrics{}
		if r.engine.MetricsEnabled {
			r.metrics = observability.NewMetricsRecorder()
		}
	}
	if r.spans == nil {
		r.spans = observability.NoopSpanManager{}
		if r.engine.TracingEnabled {
			r.spans = observability.NewSpanManager()
		}
	}
	if r.index == nil {
		r.index = filter.NewMemoryIndex[*HandleCallback]()
	}
	if r.locks == nil {
		r.locks = lock.NewFactory(lock.FactoryConfig{
			DisableLocking:  r.engine.DisableLocking,
			StatelessNoLock: r.engine.StatelessNoLock,
		})
	}
	if r.exceptions == nil {
		r.exceptions = LoggingExceptionHandler{Logger: r.logger}
	}
	if r.snapshots == nil && r.engine.SnapshotPath != "" {
		store, err := snapshot.NewSQLiteStore(r.engine.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		r.snapshots = store
		r.ownsStore = true
	}
	return r, nil
}

// Close releases resources the runtime opened itself.
func (r *Runtime) Close() error {
	if r.ownsStore {
		return r.snapshots.Close()
	}
	return nil
}

// ID returns the runtime's unique id.
func (r *Runtime) ID() string { return r.id }

// Prioritized reports whether priority ordering is enabled.
func (r *Runtime) Prioritized() bool { return r.prioritized }

// Index returns the filter index.
func (r *Runtime) Index() filter.Index[*HandleCallback] { return r.index }

// Streams returns the stream activation service.
func (r *Runtime) Streams() *activation.Service { return r.streams }

// Schedules returns the schedule directory.
func (r *Runtime) Schedules() *schedule.Directory { return r.schedules }

// Snapshots returns the snapshot store, or nil.
func (r *Runtime) Snapshots() snapshot.Store { return r.snapshots }
