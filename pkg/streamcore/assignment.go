package streamcore

import (
	"maps"
	"slices"

	"github.com/randalmurphal/streamcore/pkg/streamcore/registry"
)

// SubselectRegistry holds the per-agent-instance strategies of one
// sub-select plan node.
type SubselectRegistry struct {
	Strategy    *registry.Assignment[Strategy]
	Aggregation *registry.Assignment[Strategy]
	Prior       *registry.Assignment[Strategy]
	Previous    *registry.Assignment[Strategy]
}

func newSubselectRegistry(name string) *SubselectRegistry {
	return &SubselectRegistry{
		Strategy:    registry.NewAssignment[Strategy](name + ".strategy"),
		Aggregation: registry.NewAssignment[Strategy](name + ".aggregation"),
		Prior:       registry.NewAssignment[Strategy](name + ".prior"),
		Previous:    registry.NewAssignment[Strategy](name + ".previous"),
	}
}

func (s *SubselectRegistry) all() []*registry.Assignment[Strategy] {
	return []*registry.Assignment[Strategy]{s.Strategy, s.Aggregation, s.Prior, s.Previous}
}

// AgentInstanceRegistry is the set of per-statement resource assignment
// registries. Each maps agent instance ids to the strategies that
// instance's start produced. Entries are assigned by Runtime.Start and
// deassigned by Runtime.Stop.
type AgentInstanceRegistry struct {
	name                   string
	aggregation            *registry.Assignment[Strategy]
	matchRecognizePrevious *registry.Assignment[Strategy]
	subselects             *registry.Registry[string, *SubselectRegistry]
	prior                  *registry.Registry[string, *registry.Assignment[Strategy]]
	previous               *registry.Registry[string, *registry.Assignment[Strategy]]
	tableAccess            *registry.Registry[string, *registry.Assignment[Strategy]]
}

// NewAgentInstanceRegistry creates empty registries for a statement.
func NewAgentInstanceRegistry(statement string) *AgentInstanceRegistry {
	return &AgentInstanceRegistry{
		name:                   statement,
		aggregation:            registry.NewAssignment[Strategy](statement + ".aggregation"),
		matchRecognizePrevious: registry.NewAssignment[Strategy](statement + ".match_recognize_previous"),
		subselects:             registry.New[string, *SubselectRegistry](),
		prior:                  registry.New[string, *registry.Assignment[Strategy]](),
		previous:               registry.New[string, *registry.Assignment[Strategy]](),
		tableAccess:            registry.New[string, *registry.Assignment[Strategy]](),
	}
}

func (r *AgentInstanceRegistry) node(reg *registry.Registry[string, *registry.Assignment[Strategy]], kind, node string) *registry.Assignment[Strategy] {
	return reg.GetOrCreate(node, func() *registry.Assignment[Strategy] {
		return registry.NewAssignment[Strategy](r.name + "." + kind + "." + node)
	})
}

func (r *AgentInstanceRegistry) subselect(node string) *SubselectRegistry {
	return r.subselects.GetOrCreate(node, func() *SubselectRegistry {
		return newSubselectRegistry(r.name + ".subselect." + node)
	})
}

// Aggregation returns the aggregation strategy of an agent instance.
func (r *AgentInstanceRegistry) Aggregation(agentInstanceID int) (Strategy, bool) {
	return r.aggregation.Lookup(agentInstanceID)
}

// MatchRecognizePrevious returns the match-recognize previous strategy.
func (r *AgentInstanceRegistry) MatchRecognizePrevious(agentInstanceID int) (Strategy, bool) {
	return r.matchRecognizePrevious.Lookup(agentInstanceID)
}

// Subselect returns the strategies a sub-select node holds for an agent instance.
func (r *AgentInstanceRegistry) Subselect(node string, agentInstanceID int) (SubselectStrategies, bool) {
	sub, ok := r.subselects.Get(node)
	if !ok {
		return SubselectStrategies{}, false
	}
	strategy, ok := sub.Strategy.Lookup(agentInstanceID)
	if !ok {
		return SubselectStrategies{}, false
	}
	out := SubselectStrategies{Strategy: strategy}
	out.Aggregation, _ = sub.Aggregation.Lookup(agentInstanceID)
	out.Prior, _ = sub.Prior.Lookup(agentInstanceID)
	out.Previous, _ = sub.Previous.Lookup(agentInstanceID)
	return out, true
}

// Prior returns the prior-value strategy of a plan node.
func (r *AgentInstanceRegistry) Prior(node string, agentInstanceID int) (Strategy, bool) {
	return lookupNode(r.prior, node, agentInstanceID)
}

// Previous returns the previous-value strategy of a plan node.
func (r *AgentInstanceRegistry) Previous(node string, agentInstanceID int) (Strategy, bool) {
	return lookupNode(r.previous, node, agentInstanceID)
}

// TableAccess returns the table access strategy of a plan node.
func (r *AgentInstanceRegistry) TableAccess(node string, agentInstanceID int) (Strategy, bool) {
	return lookupNode(r.tableAccess, node, agentInstanceID)
}

func lookupNode(reg *registry.Registry[string, *registry.Assignment[Strategy]], node string, agentInstanceID int) (Strategy, bool) {
	a, ok := reg.Get(node)
	if !ok {
		return nil, false
	}
	return a.Lookup(agentInstanceID)
}

// assign registers every strategy of result under agentInstanceID.
// Sub-select nested prior and previous strategies follow their sub-select.
// On failure, nothing stays assigned for the id.
func (r *AgentInstanceRegistry) assign(agentInstanceID int, result *StartResult) (err error) {
	defer func() {
		if err != nil {
			r.deassign(agentInstanceID)
		}
	}()

	if result.Aggregation != nil {
		if err := r.aggregation.Assign(agentInstanceID, result.Aggregation); err != nil {
			return err
		}
	}

	for _, node := range slices.Sorted(maps.Keys(result.Subselects)) {
		s := result.Subselects[node]
		sub := r.subselect(node)
		if err := sub.Strategy.Assign(agentInstanceID, s.Strategy); err != nil {
			return err
		}
		if s.Aggregation != nil {
			if err := sub.Aggregation.Assign(agentInstanceID, s.Aggregation); err != nil {
				return err
			}
		}
		if s.Prior != nil {
			if err := sub.Prior.Assign(agentInstanceID, s.Prior); err != nil {
				return err
			}
		}
		if s.Previous != nil {
			if err := sub.Previous.Assign(agentInstanceID, s.Previous); err != nil {
				return err
			}
		}
	}

	for _, kind := range []struct {
		name       string
		reg        *registry.Registry[string, *registry.Assignment[Strategy]]
		strategies map[string]Strategy
	}{
		{"prior", r.prior, result.Prior},
		{"previous", r.previous, result.Previous},
	} {
		for _, node := range slices.Sorted(maps.Keys(kind.strategies)) {
			if err := r.node(kind.reg, kind.name, node).Assign(agentInstanceID, kind.strategies[node]); err != nil {
				return err
			}
		}
	}

	if result.MatchRecognizePrevious != nil {
		if err := r.matchRecognizePrevious.Assign(agentInstanceID, result.MatchRecognizePrevious); err != nil {
			return err
		}
	}

	for _, node := range slices.Sorted(maps.Keys(result.TableAccess)) {
		if err := r.node(r.tableAccess, "table", node).Assign(agentInstanceID, result.TableAccess[node]); err != nil {
			return err
		}
	}
	return nil
}

// deassign removes every entry held for agentInstanceID and reports how
// many there were.
func (r *AgentInstanceRegistry) deassign(agentInstanceID int) int {
	removed := 0
	for _, a := range r.assignments() {
		if a.Deassign(agentInstanceID) {
			removed++
		}
	}
	return removed
}

// Entries counts the strategies assigned to agentInstanceID across all
// registries.
func (r *AgentInstanceRegistry) Entries(agentInstanceID int) int {
	n := 0
	for _, a := range r.assignments() {
		if a.Has(agentInstanceID) {
			n++
		}
	}
	return n
}

func (r *AgentInstanceRegistry) assignments() []*registry.Assignment[Strategy] {
	out := []*registry.Assignment[Strategy]{r.aggregation, r.matchRecognizePrevious}
	for _, sub := range r.subselects.Values() {
		out = append(out, sub.all()...)
	}
	for _, reg := range []*registry.Registry[string, *registry.Assignment[Strategy]]{r.prior, r.previous, r.tableAccess} {
		out = append(out, reg.Values()...)
	}
	return out
}
