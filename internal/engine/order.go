package engine

import (
	"fmt"

	"agent-architect/backend/pkg/models"
)

// Graph is a workflow's agent set together with the connections that name
// agents which actually exist. Agent ids are looked up by first occurrence.
type Graph struct {
	agents   []models.Agent
	byID     map[string]models.Agent
	edges    []models.Connection
	upstream map[string][]string
}

// NewGraph indexes agents and keeps only the connections whose endpoints are
// both known. Every dropped connection is reported as an advisory.
func NewGraph(agents []models.Agent, connections []models.Connection) (*Graph, []Advisory) {
	g := &Graph{
		agents:   agents,
		byID:     make(map[string]models.Agent, len(agents)),
		upstream: make(map[string][]string),
	}
	for _, a := range agents {
		if _, ok := g.byID[a.ID]; !ok {
			g.byID[a.ID] = a
		}
	}

	var advisories []Advisory
	for _, c := range connections {
		_, fromOK := g.byID[c.From]
		_, toOK := g.byID[c.To]
		if !fromOK || !toOK {
			advisories = append(advisories, Advisory{
				Kind:    AdvisoryUnknownConnection,
				Subject: c.From + "->" + c.To,
				Detail:  "connection references an unknown agent and was ignored",
			})
			continue
		}
		g.edges = append(g.edges, c)
		g.upstream[c.To] = append(g.upstream[c.To], c.From)
	}
	return g, advisories
}

// Agent returns the first agent declared with id.
func (g *Graph) Agent(id string) (models.Agent, bool) {
	a, ok := g.byID[id]
	return a, ok
}

// Upstream returns the ids of the agents feeding id, in connection order.
func (g *Graph) Upstream(id string) []string {
	return g.upstream[id]
}

// Order computes the execution order with Kahn's algorithm. Zero in-degree
// agents are dequeued in declaration order. When the sort does not cover
// every declared agent the whole result is discarded and declaration order
// is returned with cyclic set to true.
func (g *Graph) Order() (order []string, cyclic bool) {
	if len(g.edges) == 0 {
		return g.declarationOrder(), false
	}

	inDegree := make(map[string]int, len(g.byID))
	downstream := make(map[string][]string, len(g.byID))
	for _, c := range g.edges {
		inDegree[c.To]++
		downstream[c.From] = append(downstream[c.From], c.To)
	}

	queue := make([]string, 0, len(g.byID))
	seeded := make(map[string]bool, len(g.byID))
	for _, a := range g.agents {
		if seeded[a.ID] {
			continue
		}
		seeded[a.ID] = true
		if inDegree[a.ID] == 0 {
			queue = append(queue, a.ID)
		}
	}

	order = make([]string, 0, len(g.agents))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range downstream[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) < len(g.agents) {
		return g.declarationOrder(), true
	}
	return order, false
}

func (g *Graph) declarationOrder() []string {
	ids := make([]string, len(g.agents))
	for i, a := range g.agents {
		ids[i] = a.ID
	}
	return ids
}

// Order returns the execution order of agents under connections. See
// Graph.Order for the fallback rules.
func Order(agents []models.Agent, connections []models.Connection) []string {
	g, _ := NewGraph(agents, connections)
	order, _ := g.Order()
	return order
}

func cycleAdvisory(agents int) Advisory {
	return Advisory{
		Kind:   AdvisoryGraphCycle,
		Detail: fmt.Sprintf("topological sort did not cover all %d agents; using declaration order", agents),
	}
}
