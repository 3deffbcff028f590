// Package client talks to the remote Pine build/eval service.
//
// Gateway is the raw request/response contract. Client layers the expression
// cleaning rule and the derived calls (first column, count, child expressions,
// delete query) on top of any Gateway.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/pine/pkg/pine"
)

// Endpoint names a remote call.
type Endpoint string

// Remote endpoints under /api/v1.
const (
	EndpointBuild Endpoint = "build"
	EndpointEval  Endpoint = "eval"
)

// ErrNoResponse reports a transport failure: no response or a non-success status.
var ErrNoResponse = errors.New("no response")

// ServerError is an error reported by the service in the response body.
type ServerError struct {
	Message string
	Type    string
}

func (e *ServerError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return e.Message
}

// Gateway sends an expression to an endpoint and decodes the response.
// It sends the expression exactly as given.
type Gateway interface {
	Post(ctx context.Context, endpoint Endpoint, expression string) (*pine.Response, error)
}

// Client wraps a Gateway with the expression cleaning rule and derived calls.
type Client struct {
	gateway Gateway
	logger  *slog.Logger
}

// New creates a client. A nil logger discards output.
func New(gateway Gateway, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{gateway: gateway, logger: logger}
}

func (c *Client) post(ctx context.Context, endpoint Endpoint, expression, purpose string) (*pine.Response, error) {
	c.logger.Debug("posting expression", "endpoint", endpoint, "expression", expression)
	resp, err := c.gateway.Post(ctx, endpoint, expression)
	if err != nil {
		return nil, fmt.Errorf("%w when trying to %s: %w", ErrNoResponse, purpose, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w when trying to %s", ErrNoResponse, purpose)
	}
	return resp, nil
}

// Build builds the cleaned expression. Server-reported errors are returned
// inside the response, not as an error.
func (c *Client) Build(ctx context.Context, expression string) (*pine.Response, error) {
	return c.post(ctx, EndpointBuild, pine.Clean(expression), "build")
}

// Eval evaluates the cleaned expression. Server-reported errors are returned
// inside the response, not as an error.
func (c *Client) Eval(ctx context.Context, expression string) (*pine.Response, error) {
	return c.post(ctx, EndpointEval, pine.Clean(expression), "eval")
}

// FirstColumnName returns the name of the first column of expression,
// which is usually the primary key.
func (c *Client) FirstColumnName(ctx context.Context, expression string) (string, error) {
	resp, err := c.post(ctx, EndpointEval, pine.Pipe(expression, "1"), "get the first column name")
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &ServerError{Message: resp.Error, Type: resp.ErrorType}
	}
	if len(resp.Result) == 0 || len(resp.Result[0]) == 0 {
		return "", fmt.Errorf("no columns returned for %q", expression)
	}
	return fmt.Sprint(resp.Result[0][0]), nil
}

// Count returns the number of rows matched by expression.
func (c *Client) Count(ctx context.Context, expression string) (int64, error) {
	resp, err := c.Eval(ctx, pine.Pipe(expression, "count:"))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if resp.Error != "" {
		return 0, &ServerError{Message: resp.Error, Type: resp.ErrorType}
	}
	if len(resp.Result) < 2 || len(resp.Result[1]) == 0 {
		return 0, fmt.Errorf("no count returned for %q", expression)
	}
	return toInt64(resp.Result[1][0])
}

// ChildExpressions holds the expressions reaching every dependent table of a parent.
type ChildExpressions struct {
	Expressions []string
	Ast         *pine.Ast
}

// MakeChildExpressions builds "<expr> |" with the trailing delimiter kept and
// maps every non-parent hint to "<expr> | <hint>".
func (c *Client) MakeChildExpressions(ctx context.Context, expression string) (*ChildExpressions, error) {
	x := pine.Clean(expression) + " " + pine.Delimiter
	resp, err := c.post(ctx, EndpointBuild, x, "make child expressions")
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &ServerError{Message: resp.Error, Type: resp.ErrorType}
	}
	out := &ChildExpressions{Ast: resp.Ast}
	if resp.Ast == nil {
		return out, nil
	}
	for _, h := range resp.Ast.Hints.Table {
		if h.Parent {
			continue
		}
		out.Expressions = append(out.Expressions, x+" "+h.Pine)
	}
	return out, nil
}

// DeleteExpression returns the bounded delete mutation for expression.
func DeleteExpression(expression string, limit int, column string) string {
	return pine.Pipe(pine.Pipe(expression, fmt.Sprintf("limit: %d", limit)), "delete! ."+column)
}

// BuildDeleteQuery builds the bounded delete mutation for expression and
// returns it together with the build response.
func (c *Client) BuildDeleteQuery(ctx context.Context, expression string, limit int) (string, *pine.Response, error) {
	column, err := c.FirstColumnName(ctx, expression)
	if err != nil {
		return "", nil, err
	}
	x := DeleteExpression(expression, limit, column)
	resp, err := c.post(ctx, EndpointBuild, x, "build the delete query")
	if err != nil {
		return "", nil, err
	}
	if resp.Error != "" {
		return x, resp, &ServerError{Message: resp.Error, Type: resp.ErrorType}
	}
	return x, resp, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return json.Number(strings.TrimSpace(n)).Int64()
	default:
		return 0, fmt.Errorf("unexpected count value %v (%T)", v, v)
	}
}
