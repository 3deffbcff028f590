// Package plan holds the dependency graph of a recursive delete.
//
// Every node is a pine expression selecting the rows of one table. An edge
// runs from an expression to each expression that references it, so the
// root is level 0 and rows must be removed deepest level first.
package plan

import (
	"fmt"
	"sort"
)

// Step is one node of the plan.
type Step struct {
	// Expression selects the rows to remove.
	Expression string `json:"expression"`
	// Table is the table the expression ends on, empty for the root.
	Table string `json:"table,omitempty"`
	// Level is the distance from the root.
	Level int `json:"level"`
	// Count is the number of matching rows at planning time.
	Count int64 `json:"count"`
	// Delete is the bounded delete expression for this step.
	Delete string `json:"delete,omitempty"`
	// Query is the SQL the service generated for Delete.
	Query string `json:"query,omitempty"`
	// Executed is set once the delete ran without error.
	Executed bool `json:"executed"`
	// Error holds the failure for this step, if any.
	Error string `json:"error,omitempty"`
}

// Graph tracks steps and their parent/child relations.
type Graph struct {
	steps    map[string]*Step
	children map[string][]string
	parents  map[string][]string
	order    []string
}

// NewGraph creates an empty plan graph.
func NewGraph() *Graph {
	return &Graph{
		steps:    make(map[string]*Step),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddStep registers a step keyed by its expression. Adding an existing
// expression replaces its data but keeps its edges.
func (g *Graph) AddStep(step *Step) {
	id := step.Expression
	if _, exists := g.steps[id]; !exists {
		g.children[id] = []string{}
		g.parents[id] = []string{}
		g.order = append(g.order, id)
	}
	g.steps[id] = step
}

// AddEdge records that child references parent.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, ok := g.steps[parentID]; !ok {
		return fmt.Errorf("parent step %q does not exist", parentID)
	}
	if _, ok := g.steps[childID]; !ok {
		return fmt.Errorf("child step %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}
	if !contains(g.children[parentID], childID) {
		g.children[parentID] = append(g.children[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Step returns the step for an expression.
func (g *Graph) Step(id string) (*Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Children returns the expressions referencing id.
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// Parents returns the expressions id references.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Len returns the number of steps.
func (g *Graph) Len() int {
	return len(g.steps)
}

// Steps returns all steps in insertion order.
func (g *Graph) Steps() []*Step {
	out := make([]*Step, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.steps[id])
	}
	return out
}

// HasCycle reports whether the graph contains a cycle, with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	from := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, child := range g.children[id] {
			if !visited[child] {
				from[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for cur := id; cur != child; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cycle
		}
	}
	return false, nil
}

// Levels groups expressions by their longest distance from a root.
func (g *Graph) Levels() ([][]string, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	assigned := make(map[string]int, len(g.steps))
	var level func(id string) int
	level = func(id string) int {
		if l, ok := assigned[id]; ok {
			return l
		}
		l := 0
		for _, p := range g.parents[id] {
			if pl := level(p) + 1; pl > l {
				l = pl
			}
		}
		assigned[id] = l
		return l
	}

	maxLevel := -1
	for _, id := range g.order {
		if l := level(id); l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for i := range levels {
		levels[i] = []string{}
	}
	for id, l := range assigned {
		levels[l] = append(levels[l], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// DeletionOrder returns expressions deepest level first, so rows that
// reference others go before the rows they reference.
func (g *Graph) DeletionOrder() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(g.steps))
	for i := len(levels) - 1; i >= 0; i-- {
		order = append(order, levels[i]...)
	}
	return order, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// Plan is the outcome of planning (and possibly running) a recursive delete.
type Plan struct {
	Root   string  `json:"root"`
	Column string  `json:"column"`
	Limit  int     `json:"limit"`
	DryRun bool    `json:"dryRun"`
	Steps  []*Step `json:"steps"`
}

// Total returns the number of rows counted across all steps.
func (p *Plan) Total() int64 {
	var n int64
	for _, s := range p.Steps {
		n += s.Count
	}
	return n
}

// Failed returns the steps that reported an error.
func (p *Plan) Failed() []*Step {
	var out []*Step
	for _, s := range p.Steps {
		if s.Error != "" {
			out = append(out, s)
		}
	}
	return out
}
