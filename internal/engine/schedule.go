package engine

import "agent-architect/backend/pkg/models"

// scheduler hands out agents whose upstream producers have all finished.
// Agents are released in execution-order position, and an id that appears
// more than once in the order is only released the first time.
//
// An agent is also held back while an earlier agent in the order that
// declares one of its input names has not finished, so reading a name
// through the global pool sees the same value a sequential run would.
type scheduler struct {
	order      []string
	upstream   func(id string) []string
	agent      func(id string) (models.Agent, bool)
	sequential bool

	done       map[string]bool
	dispatched map[string]bool
}

func newScheduler(graph *Graph, order []string, sequential bool) *scheduler {
	return &scheduler{
		order:      order,
		upstream:   graph.Upstream,
		agent:      graph.Agent,
		sequential: sequential,
		done:       make(map[string]bool, len(order)),
		dispatched: make(map[string]bool, len(order)),
	}
}

// next returns the agents that may run now, at most limit of them. In
// sequential mode it releases exactly the next pending id in order, ignoring
// connections; this is how a cyclic graph is run in declaration order.
func (s *scheduler) next(limit int) []string {
	if limit < 1 {
		limit = 1
	}
	var ready []string
	// normalized output names of earlier agents that have not finished
	pending := make(map[string]bool)
	for _, id := range s.order {
		if s.done[id] {
			continue
		}
		agent, _ := s.agent(id)
		if !s.dispatched[id] {
			if s.sequential {
				s.dispatched[id] = true
				return []string{id}
			}
			if s.upstreamDone(id) && !s.waitsOnPool(agent, pending) {
				s.dispatched[id] = true
				ready = append(ready, id)
				if len(ready) == limit {
					break
				}
			}
		}
		for _, out := range agent.Outputs {
			pending[Normalize(out)] = true
		}
	}
	return ready
}

func (s *scheduler) waitsOnPool(agent models.Agent, pending map[string]bool) bool {
	for _, in := range agent.Inputs {
		if pending[Normalize(in)] {
			return true
		}
	}
	return false
}

func (s *scheduler) upstreamDone(id string) bool {
	for _, up := range s.upstream(id) {
		if !s.done[up] {
			return false
		}
	}
	return true
}

func (s *scheduler) markDone(id string) {
	s.done[id] = true
}
