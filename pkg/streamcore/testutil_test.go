package streamcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
)

// Test helpers shared by the runtime tests.

// delivery is one filter callback invocation.
type delivery struct {
	Statement string
	Instance  int
	Event     string
	Tag       string
}

// recorder collects deliveries and other ordered marks from concurrent callbacks.
type recorder struct {
	mu      sync.Mutex
	entries []delivery
}

func (r *recorder) record(d delivery) {
	r.mu.Lock()
	r.entries = append(r.entries, d)
	r.mu.Unlock()
}

func (r *recorder) mark(tag string) {
	r.record(delivery{Tag: tag})
}

func (r *recorder) all() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *recorder) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d.Tag)
	}
	return out
}

func (r *recorder) statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d.Statement)
	}
	return out
}

// recordingView is a View that keeps every inserted event.
type recordingView struct {
	mu     sync.Mutex
	events []filter.Event
}

func (v *recordingView) Update(newEvents, _ []filter.Event) {
	v.mu.Lock()
	v.events = append(v.events, newEvents...)
	v.mu.Unlock()
}

func (v *recordingView) received() []filter.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.events)
}

// snapshotView is a final view whose state is a running count of events.
type snapshotView struct {
	*OutputView
	count atomic.Int64
	fail  error
}

func newSnapshotView() *snapshotView {
	return &snapshotView{OutputView: NewOutputView()}
}

func (v *snapshotView) Update(newEvents, oldEvents []filter.Event) {
	v.count.Add(int64(len(newEvents)))
	v.OutputView.Update(newEvents, oldEvents)
}

func (v *snapshotView) Snapshot() ([]byte, error) {
	if v.fail != nil {
		return nil, v.fail
	}
	return []byte(fmt.Sprint(v.count.Load())), nil
}

func (v *snapshotView) restore(data []byte) error {
	var n int64
	if _, err := fmt.Sscan(string(data), &n); err != nil {
		return err
	}
	v.count.Store(n)
	return nil
}

// testFactory registers one filter callback per spec. Each callback records
// the delivery and forwards the event to the instance's output view.
type testFactory struct {
	specs []filter.Spec
	rec   *recorder

	// onMatch runs inside every callback after the delivery is recorded.
	onMatch func(aic *AgentInstanceContext, evt filter.Event) error
	// customize adjusts the start result before it is returned.
	customize func(aic *AgentInstanceContext, result *StartResult)
	// err fails the factory after its filters are registered.
	err error

	calls      atomic.Int32
	recovering atomic.Bool
}

func (f *testFactory) NewContext(_ context.Context, aic *AgentInstanceContext, recovering bool) (*StartResult, error) {
	f.calls.Add(1)
	f.recovering.Store(recovering)

	out := NewOutputView()
	for i, spec := range f.specs {
		tag := fmt.Sprintf("%s#%d", spec.EventType, i)
		cb := filter.CallbackFunc(func(evt filter.Event) error {
			if f.rec != nil {
				f.rec.record(delivery{
					Statement: aic.Statement().Name(),
					Instance:  aic.AgentInstanceID(),
					Event:     evt.ID(),
					Tag:       tag,
				})
			}
			if f.onMatch != nil {
				if err := f.onMatch(aic, evt); err != nil {
					return err
				}
			}
			out.Update([]filter.Event{evt}, nil)
			return nil
		})
		if _, _, err := aic.RegisterFilterHandle(spec, cb); err != nil {
			return nil, err
		}
	}

	result := &StartResult{FinalView: out}
	if f.customize != nil {
		f.customize(aic, result)
	}
	if f.err != nil {
		return nil, f.err
	}
	return result, nil
}

// tradeFactory listens to every Trade event.
func tradeFactory(rec *recorder) *testFactory {
	return &testFactory{specs: []filter.Spec{{EventType: "Trade"}}, rec: rec}
}

// trade creates a Trade event.
func trade(symbol string, price float64) *filter.MapEvent {
	return filter.NewEvent("Trade", map[string]any{"symbol": symbol, "price": price})
}

// hookIndex wraps MemoryIndex. It can pin the version Match reports, run
// a hook between matching and returning, and make entry removal panic.
type hookIndex struct {
	*filter.MemoryIndex[*HandleCallback]

	// matchVersion, when non-zero, replaces the version Match reports.
	matchVersion atomic.Int64
	// afterMatch runs after the matches are collected.
	afterMatch   func(evt filter.Event)
	removePanics atomic.Bool
}

func newHookIndex() *hookIndex {
	return &hookIndex{MemoryIndex: filter.NewMemoryIndex[*HandleCallback]()}
}

func (x *hookIndex) Add(spec filter.Spec, h *HandleCallback) (func(), int64, error) {
	remove, version, err := x.MemoryIndex.Add(spec, h)
	if err != nil {
		return nil, 0, err
	}
	return func() {
		if x.removePanics.Load() {
			panic("index remove failed")
		}
		remove()
	}, version, nil
}

func (x *hookIndex) Match(evt filter.Event) ([]*HandleCallback, int64) {
	matches, version := x.MemoryIndex.Match(evt)
	if x.afterMatch != nil {
		x.afterMatch(evt)
	}
	if pinned := x.matchVersion.Load(); pinned != 0 {
		version = pinned
	}
	return matches, version
}

// brittleView is a final view that panics when attached to or detached
// from the statement output.
type brittleView struct {
	*OutputView
	panicOnAdd    string
	panicOnRemove string
}

func (v *brittleView) AddView(child View) {
	if v.panicOnAdd != "" {
		panic(v.panicOnAdd)
	}
	v.OutputView.AddView(child)
}

func (v *brittleView) RemoveView(child View) bool {
	if v.panicOnRemove != "" {
		panic(v.panicOnRemove)
	}
	return v.OutputView.RemoveView(child)
}

// faultRecorder is a FaultHandler remembering the versions it was called with.
type faultRecorder struct {
	mu       sync.Mutex
	versions []int64
}

func (f *faultRecorder) HandleFilterFault(_ context.Context, _ filter.Event, version int64) {
	f.mu.Lock()
	f.versions = append(f.versions, version)
	f.mu.Unlock()
}

func (f *faultRecorder) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.versions)
}

// exceptionRecorder is an ExceptionHandler remembering every failure.
type exceptionRecorder struct {
	mu     sync.Mutex
	errs   []error
	owners []string
}

func (e *exceptionRecorder) HandleException(_ context.Context, err error, h *AgentInstanceHandle, _ filter.Event) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.owners = append(e.owners, h.Statement().Name())
	e.mu.Unlock()
}

func (e *exceptionRecorder) failures() ([]error, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.errs), slices.Clone(e.owners)
}

// hooksRecorder is an ExtensionHooks implementation with injectable failures.
type hooksRecorder struct {
	startErr error
	endErr   error
	rec      *recorder
}

func (h *hooksRecorder) StartContextPartition(_ context.Context, _ *StartResult, id int) error {
	h.rec.mark(fmt.Sprintf("start-partition-%d", id))
	return h.startErr
}

func (h *hooksRecorder) EndContextPartition(_ context.Context, id int) error {
	h.rec.mark(fmt.Sprintf("end-partition-%d", id))
	return h.endErr
}

// logCapture collects JSON log records. It is safe for concurrent use.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newCapturedLogger() (*slog.Logger, *logCapture) {
	c := &logCapture{}
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) records(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(c.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func (c *logCapture) withMessage(t *testing.T, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, r := range c.records(t) {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}

// newTestRuntime creates a runtime logging to io.Discard.
func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := NewRuntime(append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := rt.Close(); err != nil {
			t.Logf("closing runtime: %v", err)
		}
	})
	return rt
}

// mustStart starts an agent instance and fails the test on error.
func mustStart(t *testing.T, rt *Runtime, stmt *Statement, id int, props ContextProperties, opts ...StartOption) *AgentInstance {
	t.Helper()
	ai, err := rt.Start(context.Background(), stmt, id, props, opts...)
	require.NoError(t, err)
	require.NotNil(t, ai)
	return ai
}
