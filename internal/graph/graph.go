// Package graph derives the join graph shown for a built expression.
//
// Generate is a pure function of the AST and the candidate index: every call
// allocates its own lookup structures and nothing is shared between calls or
// sessions.
package graph

import (
	"github.com/leapstack-labs/pine/pkg/pine"
)

// NodeType distinguishes selected tables from suggestions.
type NodeType string

// Node types.
const (
	NodeSelected  NodeType = "selected"
	NodeSuggested NodeType = "suggested"
	NodeCandidate NodeType = "candidate"
)

// Node is a vertex of the join graph. Selected nodes are keyed by alias and
// carry their 1-based order; suggested nodes are keyed by their pine fragment.
type Node struct {
	ID     string   `json:"id"`
	Type   NodeType `json:"type"`
	Schema string   `json:"schema"`
	Table  string   `json:"table"`
	Alias  string   `json:"alias,omitempty"`
	Column string   `json:"column,omitempty"`
	Parent bool     `json:"parent,omitempty"`
	Pine   string   `json:"pine,omitempty"`
	Order  int      `json:"order,omitempty"`
	Color  string   `json:"color"`
}

// Suggested reports whether the node comes from a hint.
func (n Node) Suggested() bool {
	return n.Type == NodeSuggested || n.Type == NodeCandidate
}

// Edge connects two nodes. Animated marks edges to suggestions.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated,omitempty"`
}

// Graph holds nodes (selected first, then suggested) and deduplicated edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Empty returns a graph with no nodes and no edges.
func Empty() Graph {
	return Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// Result is the output of Generate.
type Result struct {
	Graph Graph
	// Candidate is the hint at Index, nil when there are no hints or no index.
	Candidate *pine.TableHint
	// Index is the clamped candidate index.
	Index *int
}

// ClampIndex reduces index into [0, n) with wraparound. It returns nil when
// index is nil or there is nothing to point at.
func ClampIndex(index *int, n int) *int {
	if index == nil || n <= 0 {
		return nil
	}
	i := ((*index % n) + n) % n
	return &i
}

// Generate builds the graph and candidate for ast.
func Generate(ast *pine.Ast, candidateIndex *int) Result {
	if ast == nil {
		return Result{Graph: Empty()}
	}

	hints := ast.Hints.Table
	index := ClampIndex(candidateIndex, len(hints))

	nodes := make([]Node, 0, len(ast.SelectedTables)+len(hints))
	selected := make(map[string]Node, len(ast.SelectedTables))
	for i, t := range ast.SelectedTables {
		n := Node{
			ID:     t.Alias,
			Type:   NodeSelected,
			Schema: t.Schema,
			Table:  t.Table,
			Alias:  t.Alias,
			Order:  i + 1,
			Color:  SchemaColor(t.Schema),
		}
		selected[t.Alias] = n
		nodes = append(nodes, n)
	}

	var candidate *pine.TableHint
	suggested := make([]Node, 0, len(hints))
	for i, h := range hints {
		n := Node{
			ID:     h.Pine,
			Type:   NodeSuggested,
			Schema: h.Schema,
			Table:  h.Table,
			Column: h.Column,
			Parent: h.Parent,
			Pine:   h.Pine,
			Color:  SchemaColor(h.Schema),
		}
		if index != nil && *index == i {
			n.Type = NodeCandidate
			hint := h
			candidate = &hint
		}
		suggested = append(suggested, n)
	}
	nodes = append(nodes, suggested...)

	edges := newEdgeSet()
	for _, j := range ast.Joins {
		if j.From == "" || j.To == "" || j.Relation == "" {
			continue
		}
		from, ok := selected[j.From]
		if !ok {
			continue
		}
		to, ok := selected[j.To]
		if !ok {
			continue
		}
		if j.Relation == pine.RelationHas {
			edges.add(from.ID, to.ID, false)
		} else {
			edges.add(to.ID, from.ID, false)
		}
	}

	if context, ok := selected[ast.Context]; ok {
		for _, n := range suggested {
			if n.Parent {
				edges.add(n.ID, context.ID, true)
			} else {
				edges.add(context.ID, n.ID, true)
			}
		}
	}

	return Result{
		Graph:     Graph{Nodes: nodes, Edges: edges.list},
		Candidate: candidate,
		Index:     index,
	}
}

// EdgeID returns the key shared by a->b and b->a.
func EdgeID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + " " + b
}

type edgeSet struct {
	seen map[string]struct{}
	list []Edge
}

func newEdgeSet() *edgeSet {
	return &edgeSet{seen: make(map[string]struct{}), list: []Edge{}}
}

func (s *edgeSet) add(source, target string, animated bool) {
	id := EdgeID(source, target)
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.list = append(s.list, Edge{ID: id, Source: source, Target: target, Animated: animated})
}
