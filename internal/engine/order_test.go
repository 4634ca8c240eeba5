package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-architect/backend/pkg/models"
)

func agents(ids ...string) []models.Agent {
	out := make([]models.Agent, len(ids))
	for i, id := range ids {
		out[i] = models.Agent{ID: id, Name: "Agent " + id}
	}
	return out
}

func conn(from, to string) models.Connection {
	return models.Connection{From: from, To: to}
}

func assertTopological(t *testing.T, order []string, ids []string, conns []models.Connection) {
	t.Helper()
	require.ElementsMatch(t, ids, order)
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, c := range conns {
		assert.Less(t, pos[c.From], pos[c.To], "%s must run before %s", c.From, c.To)
	}
}

func TestOrder_NoConnectionsKeepsDeclarationOrder(t *testing.T) {
	assert.Equal(t, []string{"c", "a", "b"}, Order(agents("c", "a", "b"), nil))
}

func TestOrder_Acyclic(t *testing.T) {
	tests := []struct {
		name  string
		ids   []string
		conns []models.Connection
	}{
		{"linear reversed", []string{"c", "b", "a"}, []models.Connection{conn("a", "b"), conn("b", "c")}},
		{"diamond", []string{"d", "b", "c", "a"}, []models.Connection{conn("a", "b"), conn("a", "c"), conn("b", "d"), conn("c", "d")}},
		{"fan in", []string{"x", "y", "z", "sink"}, []models.Connection{conn("x", "sink"), conn("y", "sink"), conn("z", "sink")}},
		{"duplicate edge", []string{"b", "a"}, []models.Connection{conn("a", "b"), conn("a", "b")}},
		{"disconnected island", []string{"a", "b", "lonely"}, []models.Connection{conn("b", "a")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := Order(agents(tt.ids...), tt.conns)
			assertTopological(t, order, tt.ids, tt.conns)
		})
	}
}

func TestOrder_ZeroInDegreeInDeclarationOrder(t *testing.T) {
	order := Order(agents("b", "a", "c"), []models.Connection{conn("a", "c"), conn("b", "c")})
	assert.Equal(t, []string{"b", "a", "c"}, order)
}

func TestOrder_CycleFallsBackToDeclarationOrder(t *testing.T) {
	ids := []string{"c", "a", "b", "d"}
	g, _ := NewGraph(agents(ids...), []models.Connection{conn("d", "a"), conn("a", "b"), conn("b", "a")})
	order, cyclic := g.Order()
	assert.True(t, cyclic)
	assert.Equal(t, ids, order)
}

func TestOrder_SelfLoopIsACycle(t *testing.T) {
	order := Order(agents("b", "a"), []models.Connection{conn("a", "a")})
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestOrder_DuplicateIDsFallBack(t *testing.T) {
	list := agents("a", "b", "a")
	g, _ := NewGraph(list, []models.Connection{conn("b", "a")})
	order, cyclic := g.Order()
	assert.True(t, cyclic)
	assert.Equal(t, []string{"a", "b", "a"}, order)
}

func TestNewGraph_DropsUnknownConnections(t *testing.T) {
	g, advisories := NewGraph(agents("b", "a"), []models.Connection{conn("a", "b"), conn("ghost", "a"), conn("a", "nowhere")})
	require.Len(t, advisories, 2)
	for _, a := range advisories {
		assert.Equal(t, AdvisoryUnknownConnection, a.Kind)
	}
	assert.Equal(t, []string{"a"}, g.Upstream("b"))
	assert.Empty(t, g.Upstream("a"))

	order, cyclic := g.Order()
	assert.False(t, cyclic)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestScheduler_SequentialFollowsOrder(t *testing.T) {
	g, _ := NewGraph(agents("a", "b", "c"), nil)
	s := newScheduler(g, []string{"a", "b", "a", "c"}, true)
	var got []string
	for {
		ids := s.next(4)
		if len(ids) == 0 {
			break
		}
		require.Len(t, ids, 1)
		got = append(got, ids[0])
		s.markDone(ids[0])
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestScheduler_WavesRespectUpstream(t *testing.T) {
	g, _ := NewGraph(agents("a", "b", "c", "d"), []models.Connection{conn("a", "b"), conn("a", "c"), conn("b", "d"), conn("c", "d")})
	order, _ := g.Order()
	s := newScheduler(g, order, false)

	var waves [][]string
	for {
		ids := s.next(8)
		if len(ids) == 0 {
			break
		}
		waves = append(waves, ids)
		for _, id := range ids {
			s.markDone(id)
		}
	}
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, waves)
}

func TestScheduler_LimitCapsWave(t *testing.T) {
	g, _ := NewGraph(agents("a", "b", "c"), nil)
	s := newScheduler(g, []string{"a", "b", "c"}, false)
	assert.Equal(t, []string{"a", "b"}, s.next(2))
	assert.Equal(t, []string{"c"}, s.next(2))
	assert.Empty(t, s.next(2))
}

func TestScheduler_PoolReaderWaitsForEarlierWriter(t *testing.T) {
	g, _ := NewGraph([]models.Agent{
		{ID: "a", Outputs: []string{"t: string"}},
		{ID: "b", Inputs: []string{"t"}, Outputs: []string{"u"}},
		{ID: "c", Inputs: []string{"other"}},
	}, nil)
	s := newScheduler(g, []string{"a", "b", "c"}, false)

	assert.Equal(t, []string{"a", "c"}, s.next(4))
	assert.Empty(t, s.next(4), "b waits while a is running")
	s.markDone("a")
	s.markDone("c")
	assert.Equal(t, []string{"b"}, s.next(4))
}
