package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	for _, s := range []*Step{
		{Expression: "users"},
		{Expression: "users | orders", Table: "orders", Level: 1},
		{Expression: "users | sessions", Table: "sessions", Level: 1},
		{Expression: "users | orders | items", Table: "items", Level: 2},
	} {
		g.AddStep(s)
	}
	require.NoError(t, g.AddEdge("users", "users | orders"))
	require.NoError(t, g.AddEdge("users", "users | sessions"))
	require.NoError(t, g.AddEdge("users | orders", "users | orders | items"))
	return g
}

func TestGraph_AddEdge_Errors(t *testing.T) {
	g := NewGraph()
	g.AddStep(&Step{Expression: "a"})

	assert.Error(t, g.AddEdge("a", "missing"))
	assert.Error(t, g.AddEdge("missing", "a"))
	assert.Error(t, g.AddEdge("a", "a"))
}

func TestGraph_AddStep_ReplacesData(t *testing.T) {
	g := newTree(t)
	g.AddStep(&Step{Expression: "users | orders", Count: 7})

	s, ok := g.Step("users | orders")
	require.True(t, ok)
	assert.Equal(t, int64(7), s.Count)
	assert.Equal(t, []string{"users | orders | items"}, g.Children("users | orders"))
	assert.Equal(t, 4, g.Len())
}

func TestGraph_Levels(t *testing.T) {
	g := newTree(t)

	levels, err := g.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"users"},
		{"users | orders", "users | sessions"},
		{"users | orders | items"},
	}, levels)
}

func TestGraph_DeletionOrder(t *testing.T) {
	g := newTree(t)

	order, err := g.DeletionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"users | orders | items",
		"users | orders",
		"users | sessions",
		"users",
	}, order)
}

func TestGraph_Cycle(t *testing.T) {
	g := NewGraph()
	g.AddStep(&Step{Expression: "a"})
	g.AddStep(&Step{Expression: "b"})
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "a"))

	hasCycle, path := g.HasCycle()
	assert.True(t, hasCycle)
	assert.NotEmpty(t, path)

	_, err := g.DeletionOrder()
	assert.Error(t, err)
}

func TestGraph_Empty(t *testing.T) {
	g := NewGraph()
	order, err := g.DeletionOrder()
	require.NoError(t, err)
	assert.Empty(t, order)
	assert.Empty(t, g.Steps())
}

func TestPlan_TotalAndFailed(t *testing.T) {
	p := &Plan{Steps: []*Step{
		{Expression: "a", Count: 3},
		{Expression: "b", Count: 4, Error: "boom"},
	}}
	assert.Equal(t, int64(7), p.Total())
	require.Len(t, p.Failed(), 1)
	assert.Equal(t, "b", p.Failed()[0].Expression)
}
