package streamcore

import (
	"github.com/randalmurphal/streamcore/pkg/streamcore/lock"
)

// AgentInstance is one running copy of a statement in one context
// partition. It is created by Runtime.Start and destroyed by Runtime.Stop;
// a stopped instance is never revived.
type AgentInstance struct {
	context      *AgentInstanceContext
	finalView    Viewable
	stopCallback StopCallback
	result       *StartResult

	filterVersionAfterAllocation int64
}

// ID returns the agent instance id, unique within the statement.
func (ai *AgentInstance) ID() int { return ai.context.handle.agentInstanceID }

// Statement returns the owning statement.
func (ai *AgentInstance) Statement() *Statement { return ai.context.statement }

// Context returns the agent instance context.
func (ai *AgentInstance) Context() *AgentInstanceContext { return ai.context }

// Handle returns the agent instance handle.
func (ai *AgentInstance) Handle() *AgentInstanceHandle { return ai.context.handle }

// Lock returns the agent instance lock. Callers batching a stop acquire it
// and pass the guard with WithHeldLock.
func (ai *AgentInstance) Lock() lock.Lock { return ai.context.handle.lock }

// FinalView returns the end of the instance's view pipeline.
func (ai *AgentInstance) FinalView() Viewable { return ai.finalView }

// Properties returns the partition properties.
func (ai *AgentInstance) Properties() ContextProperties { return ai.context.properties }

// StartResult returns what the factory produced at start.
func (ai *AgentInstance) StartResult() *StartResult { return ai.result }

// FilterVersionAfterAllocation returns the filter index version observed
// once start completed.
func (ai *AgentInstance) FilterVersionAfterAllocation() int64 {
	return ai.filterVersionAfterAllocation
}

// IsDestroyed reports whether the instance has been stopped.
func (ai *AgentInstance) IsDestroyed() bool { return ai.context.handle.IsDestroyed() }

// AgentInstanceList is the set of agent instances a context controller
// allocated together, with the filter version observed after allocation.
type AgentInstanceList struct {
	FilterVersionAfterAllocation int64
	AgentInstances               []*AgentInstance
}

// NewAgentInstanceList groups instances, taking the highest allocation
// version among them.
func NewAgentInstanceList(instances ...*AgentInstance) *AgentInstanceList {
	l := &AgentInstanceList{AgentInstances: instances}
	for _, ai := range instances {
		l.FilterVersionAfterAllocation = max(l.FilterVersionAfterAllocation, ai.filterVersionAfterAllocation)
	}
	return l
}
