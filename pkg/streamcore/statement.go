package streamcore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/randalmurphal/streamcore/pkg/streamcore/lock"
	"github.com/randalmurphal/streamcore/pkg/streamcore/resolution"
)

// Factory materializes the view pipeline of one agent instance.
//
// NewContext runs under the agent instance's write lock. It may register
// filters and streams through aic; everything registered there is torn
// down again if start fails.
type Factory interface {
	NewContext(ctx context.Context, aic *AgentInstanceContext, recovering bool) (*StartResult, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, aic *AgentInstanceContext, recovering bool) (*StartResult, error)

// NewContext implements Factory.
func (f FactoryFunc) NewContext(ctx context.Context, aic *AgentInstanceContext, recovering bool) (*StartResult, error) {
	return f(ctx, aic, recovering)
}

// Statement is a compiled continuous query. It owns the agent instances
// running it, one per context partition, and the per-statement services
// those instances share.
//
// Statement configuration is immutable after NewStatement.
type Statement struct {
	id          int64
	name        string
	expression  string
	annotations map[string]string
	stateless   bool
	priority    int
	preemptive  bool
	selfJoin    bool
	tables      []lock.Lock
	script      bool
	factory     Factory
	hooks       ExtensionHooks
	exceptions  ExceptionHandler

	registry *AgentInstanceRegistry
	merge    *MergeView

	bindOnce    sync.Once
	defaultLock lock.Lock
	resolution  *resolution.Service

	mu        sync.Mutex
	instances map[int]*AgentInstance // nil value: id reserved by an in-flight start
}

// StatementOption configures a Statement.
type StatementOption func(*Statement)

// WithPriority sets the dispatch priority. Higher runs first when the
// runtime is prioritized. Default: 0
func WithPriority(priority int) StatementOption {
	return func(s *Statement) {
		s.priority = priority
	}
}

// WithPreemptive marks the statement preemptive: when the runtime is
// prioritized and one of its agent instances processes an event, lower
// priority instances do not see that event.
func WithPreemptive() StatementOption {
	return func(s *Statement) {
		s.preemptive = true
	}
}

// WithSelfJoin marks the statement as joining a stream against itself.
// All matches of one event for one agent instance are then delivered as
// a single batch.
func WithSelfJoin() StatementOption {
	return func(s *Statement) {
		s.selfJoin = true
	}
}

// WithStateless marks the statement stateless, which lets the lock
// factory hand out a no-op lock.
func WithStateless() StatementOption {
	return func(s *Statement) {
		s.stateless = true
	}
}

// WithTableAccess declares the table locks the statement reads under.
// Agent instances acquire them through AgentInstanceContext.LockTables;
// they are released at the end of every start, dispatch and stop.
func WithTableAccess(tables ...lock.Lock) StatementOption {
	return func(s *Statement) {
		s.tables = append(s.tables, tables...)
	}
}

// WithAnnotations attaches statement annotations, such as NoLock.
func WithAnnotations(annotations map[string]string) StatementOption {
	return func(s *Statement) {
		s.annotations = maps.Clone(annotations)
	}
}

// WithExpression records the statement text.
func WithExpression(expression string) StatementOption {
	return func(s *Statement) {
		s.expression = expression
	}
}

// WithScriptContext gives every agent instance its own ScriptContext.
func WithScriptContext() StatementOption {
	return func(s *Statement) {
		s.script = true
	}
}

// WithExtensionHooks installs context partition hooks.
func WithExtensionHooks(hooks ExtensionHooks) StatementOption {
	return func(s *Statement) {
		s.hooks = hooks
	}
}

// WithStatementExceptionHandler overrides the runtime exception handler
// for this statement's dispatch failures.
func WithStatementExceptionHandler(h ExceptionHandler) StatementOption {
	return func(s *Statement) {
		s.exceptions = h
	}
}

// NewStatement creates a statement with the given identity and factory.
func NewStatement(id int64, name string, factory Factory, opts ...StatementOption) *Statement {
	s := &Statement{
		id:        id,
		name:      name,
		factory:   factory,
		registry:  NewAgentInstanceRegistry(name),
		merge:     NewMergeView(),
		instances: make(map[int]*AgentInstance),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// bind creates the services that depend on the runtime the statement
// first starts under.
func (s *Statement) bind(r *Runtime) {
	s.bindOnce.Do(func() {
		s.defaultLock = r.locks.Lock(s.name, s.annotations, s.stateless)
		s.resolution = resolution.NewService(r.engine.ResolutionTTL)
	})
}

// ID returns the statement id.
func (s *Statement) ID() int64 { return s.id }

// Name returns the statement name.
func (s *Statement) Name() string { return s.name }

// Expression returns the statement text.
func (s *Statement) Expression() string { return s.expression }

// Annotations returns a copy of the statement annotations.
func (s *Statement) Annotations() map[string]string { return maps.Clone(s.annotations) }

// Stateless reports whether the statement is stateless.
func (s *Statement) Stateless() bool { return s.stateless }

// Priority returns the dispatch priority.
func (s *Statement) Priority() int { return s.priority }

// Preemptive reports whether the statement is preemptive.
func (s *Statement) Preemptive() bool { return s.preemptive }

// SelfJoin reports whether the statement joins a stream against itself.
func (s *Statement) SelfJoin() bool { return s.selfJoin }

// HasTableAccess reports whether the statement declared table locks.
func (s *Statement) HasTableAccess() bool { return len(s.tables) > 0 }

// Registry returns the statement's resource assignment registries.
func (s *Statement) Registry() *AgentInstanceRegistry { return s.registry }

// Resolution returns the evaluator resolution cache. It is nil until the
// statement's first start.
func (s *Statement) Resolution() *resolution.Service { return s.resolution }

// AddListener attaches a view to the statement's merged output. Every
// agent instance's final view feeds it.
func (s *Statement) AddListener(v View) { s.merge.AddView(v) }

// RemoveListener detaches a view added with AddListener.
func (s *Statement) RemoveListener(v View) bool { return s.merge.RemoveView(v) }

// AgentInstance returns the live agent instance with the given id.
func (s *Statement) AgentInstance(id int) (*AgentInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ai := s.instances[id]
	return ai, ai != nil
}

// AgentInstances returns the live agent instances ordered by id.
func (s *Statement) AgentInstances() []*AgentInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*AgentInstance, 0, len(s.instances))
	for _, id := range slices.Sorted(maps.Keys(s.instances)) {
		if ai := s.instances[id]; ai != nil {
			out = append(out, ai)
		}
	}
	return out
}

func (s *Statement) reserve(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; ok {
		return false
	}
	s.instances[id] = nil
	return true
}

func (s *Statement) commit(id int, ai *AgentInstance) {
	s.mu.Lock()
	s.instances[id] = ai
	s.mu.Unlock()
}

func (s *Statement) release(id int) {
	s.mu.Lock()
	delete(s.instances, id)
	s.mu.Unlock()
}
