package engine

import (
	"agent-architect/backend/pkg/models"
)

// ResolveInputs sources every declared input of agent. Upstream agents, in
// connection order, are searched first: a producer qualifies when one of its
// declared outputs normalizes to the input's name and its result holds that
// output. The global pool is searched next. Inputs found nowhere are left out
// of the returned map and reported. Keys are the declared input names as
// written.
func (g *Graph) ResolveInputs(agent models.Agent, globals map[string]any, prior map[string]models.AgentOutput) (map[string]any, []Advisory) {
	resolved := make(map[string]any, len(agent.Inputs))
	var advisories []Advisory

	for _, input := range agent.Inputs {
		if v, ok := g.fromUpstream(agent.ID, input, prior); ok {
			resolved[input] = v
			continue
		}
		if v, ok := lookup(globals, input); ok {
			resolved[input] = v
			continue
		}
		advisories = append(advisories, Advisory{
			Kind:    AdvisoryUnresolvedInput,
			AgentID: agent.ID,
			Subject: input,
			Detail:  "no upstream agent or global input supplies this value",
		})
	}
	return resolved, advisories
}

func (g *Graph) fromUpstream(agentID, input string, prior map[string]models.AgentOutput) (any, bool) {
	name := Normalize(input)
	for _, sourceID := range g.Upstream(agentID) {
		out, ok := prior[sourceID]
		if !ok {
			continue
		}
		source, _ := g.Agent(sourceID)
		for _, declared := range source.Outputs {
			if Normalize(declared) != name {
				continue
			}
			if v, ok := lookup(out.Result, declared); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// ResolveInputs is the standalone form of Graph.ResolveInputs.
func ResolveInputs(agent models.Agent, agents []models.Agent, connections []models.Connection, globals map[string]any, prior map[string]models.AgentOutput) (map[string]any, []Advisory) {
	g, _ := NewGraph(agents, connections)
	return g.ResolveInputs(agent, globals, prior)
}
