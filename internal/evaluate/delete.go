package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/plan"
	"github.com/leapstack-labs/pine/pkg/pine"
)

const deleteStage = "delete!"

// RootExpression strips a trailing delete stage, leaving the expression that
// selects the rows to remove.
func RootExpression(expression string) string {
	stages := pine.Stages(expression)
	if n := len(stages); n > 0 && strings.HasPrefix(stages[n-1], deleteStage) {
		stages = stages[:n-1]
	}
	return strings.Join(stages, " "+pine.Delimiter+" ")
}

// RecursiveDeletePlugin deletes the rows of an expression together with every
// row that depends on them, deepest dependents first.
type RecursiveDeletePlugin struct {
	client *client.Client
	limit  int
	depth  int
	dryRun bool
	logger *slog.Logger
}

// Evaluate implements Plugin. On a failed delete the returned plan shows which
// steps ran.
func (p *RecursiveDeletePlugin) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	root := RootExpression(req.Expression)
	if root == "" {
		return nil, fmt.Errorf("nothing to delete in %q", req.Expression)
	}

	g, err := p.expand(ctx, root)
	if err != nil {
		return nil, err
	}

	order, err := g.DeletionOrder()
	if err != nil {
		return nil, fmt.Errorf("ordering delete plan: %w", err)
	}

	out := &DeletePlan{Plan: &plan.Plan{
		Root:   root,
		Limit:  p.limit,
		DryRun: p.dryRun,
		Steps:  make([]*plan.Step, 0, len(order)),
	}}

	for _, id := range order {
		step, _ := g.Step(id)
		out.Plan.Steps = append(out.Plan.Steps, step)
	}

	for _, step := range out.Plan.Steps {
		if step.Count == 0 && step.Expression != root {
			continue
		}
		x, resp, err := p.client.BuildDeleteQuery(ctx, step.Expression, p.limit)
		if err != nil {
			step.Error = err.Error()
			return out, fmt.Errorf("building delete for %q: %w", step.Expression, err)
		}
		step.Delete = x
		step.Query = resp.Query
		if step.Expression == root {
			out.Ast = resp.Ast
			out.Plan.Column = strings.TrimPrefix(pine.LastStage(x), deleteStage+" .")
		}
	}

	if p.dryRun {
		return out, nil
	}

	for _, step := range out.Plan.Steps {
		if step.Delete == "" || step.Count == 0 {
			continue
		}
		p.logger.Info("deleting rows", "expression", step.Expression, "count", step.Count)
		resp, err := p.client.Eval(ctx, step.Delete)
		if err == nil && resp.Error != "" {
			err = &client.ServerError{Message: resp.Error, Type: resp.ErrorType}
		}
		if err != nil {
			step.Error = err.Error()
			return out, fmt.Errorf("deleting %q: %w", step.Expression, err)
		}
		step.Executed = true
	}
	return out, nil
}

// expand walks dependents breadth first from root, counting rows at every
// node. Nodes without rows are not expanded.
func (p *RecursiveDeletePlugin) expand(ctx context.Context, root string) (*plan.Graph, error) {
	g := plan.NewGraph()
	g.AddStep(&plan.Step{Expression: root})

	frontier := []string{root}
	for level := 0; len(frontier) > 0; level++ {
		var next []string
		for _, x := range frontier {
			step, _ := g.Step(x)
			count, err := p.client.Count(ctx, x)
			if err != nil {
				return nil, fmt.Errorf("counting %q: %w", x, err)
			}
			step.Count = count
			if count == 0 || level >= p.depth {
				continue
			}

			children, err := p.client.MakeChildExpressions(ctx, x)
			if err != nil {
				return nil, fmt.Errorf("expanding %q: %w", x, err)
			}
			for _, child := range children.Expressions {
				if _, exists := g.Step(child); exists {
					continue
				}
				g.AddStep(&plan.Step{
					Expression: child,
					Table:      pine.LastStage(child),
					Level:      level + 1,
				})
				if err := g.AddEdge(x, child); err != nil {
					return nil, err
				}
				next = append(next, child)
			}
		}
		frontier = next
	}
	p.logger.Debug("expanded delete plan", "root", root, "steps", g.Len())
	return g, nil
}
