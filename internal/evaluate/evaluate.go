// Package evaluate runs a built expression through the plugin matching its
// operation type.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/plan"
	"github.com/leapstack-labs/pine/pkg/pine"
)

// Request is what a plugin gets to work with.
type Request struct {
	Expression string
	// Ast is the last applied build result. It may be nil.
	Ast *pine.Ast
}

// Outcome is the closed set of evaluation results. The session decides how
// each variant is applied to its state.
type Outcome interface {
	outcome()
}

// TableResult is the outcome of a plain table query.
type TableResult struct {
	Columns    []string
	Rows       [][]any
	Query      string
	Connection string
}

// DeletePlan is the outcome of a recursive delete.
type DeletePlan struct {
	Plan *plan.Plan
	// Ast comes from building the root delete expression and drives the graph.
	Ast *pine.Ast
}

func (*TableResult) outcome() {}
func (*DeletePlan) outcome()  {}

// Plugin evaluates one kind of operation. A plugin may return a partial
// outcome together with an error.
type Plugin interface {
	Evaluate(ctx context.Context, req Request) (Outcome, error)
}

// Options configures the dispatcher and its plugins.
type Options struct {
	// DeleteLimit bounds every delete statement. Default 1000.
	DeleteLimit int
	// DeleteDepth is how many levels of dependents are followed. Default 5.
	DeleteDepth int
	// DryRun plans deletes without running them.
	DryRun bool
	Logger *slog.Logger
}

// Default option values.
const (
	DefaultDeleteLimit = 1000
	DefaultDeleteDepth = 5
)

// Dispatcher maps operation types to plugins.
type Dispatcher struct {
	plugins  map[pine.OperationType]Plugin
	fallback Plugin
	logger   *slog.Logger
}

// NewDispatcher wires the default and recursive delete plugins to c.
func NewDispatcher(c *client.Client, opts Options) *Dispatcher {
	if opts.DeleteLimit <= 0 {
		opts.DeleteLimit = DefaultDeleteLimit
	}
	if opts.DeleteDepth <= 0 {
		opts.DeleteDepth = DefaultDeleteDepth
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	def := &DefaultPlugin{client: c}
	return &Dispatcher{
		plugins: map[pine.OperationType]Plugin{
			pine.OperationTable: def,
			pine.OperationDelete: &RecursiveDeletePlugin{
				client: c,
				limit:  opts.DeleteLimit,
				depth:  opts.DeleteDepth,
				dryRun: opts.DryRun,
				logger: opts.Logger,
			},
		},
		fallback: def,
		logger:   opts.Logger,
	}
}

// Plugin returns the plugin for op, falling back to the default plugin for
// unknown types.
func (d *Dispatcher) Plugin(op pine.OperationType) Plugin {
	if p, ok := d.plugins[op]; ok {
		return p
	}
	return d.fallback
}

// Evaluate dispatches req by the operation carried in its AST.
func (d *Dispatcher) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	op := pine.OperationOf(req.Ast).Type
	d.logger.Debug("evaluating expression", "operation", op, "expression", req.Expression)
	return d.Plugin(op).Evaluate(ctx, req)
}

// DefaultPlugin runs the expression as is and returns its rows.
type DefaultPlugin struct {
	client *client.Client
}

// Evaluate implements Plugin.
func (p *DefaultPlugin) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	resp, err := p.client.Eval(ctx, req.Expression)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &client.ServerError{Message: resp.Error, Type: resp.ErrorType}
	}

	res := &TableResult{
		Columns:    []string{},
		Rows:       [][]any{},
		Query:      resp.Query,
		Connection: resp.ConnectionID,
	}
	if len(resp.Result) == 0 {
		return res, nil
	}
	for _, h := range resp.Result[0] {
		res.Columns = append(res.Columns, fmt.Sprint(h))
	}
	res.Rows = append(res.Rows, resp.Result[1:]...)
	return res, nil
}
