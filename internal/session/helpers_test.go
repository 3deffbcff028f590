package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/debounce"
	"github.com/leapstack-labs/pine/internal/testutil"
	"github.com/leapstack-labs/pine/pkg/pine"
	"github.com/stretchr/testify/require"
)

type handler func(ctx context.Context, expression string) (*pine.Response, error)

// memGateway is an in-process client.Gateway.
type memGateway struct {
	mu     sync.Mutex
	build  handler
	eval   handler
	builds []string
	evals  []string
}

func newMemGateway() *memGateway {
	empty := func(context.Context, string) (*pine.Response, error) {
		return &pine.Response{Ast: &pine.Ast{}}, nil
	}
	return &memGateway{build: empty, eval: empty}
}

func (g *memGateway) Post(ctx context.Context, endpoint client.Endpoint, expression string) (*pine.Response, error) {
	g.mu.Lock()
	h := g.build
	if endpoint == client.EndpointEval {
		h = g.eval
		g.evals = append(g.evals, expression)
	} else {
		g.builds = append(g.builds, expression)
	}
	g.mu.Unlock()
	return h(ctx, expression)
}

func (g *memGateway) onBuild(h handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.build = h
}

func (g *memGateway) onEval(h handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.eval = h
}

func (g *memGateway) buildCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.builds...)
}

var errUnavailable = errors.New("connection refused")

const interval = 150 * time.Millisecond

type fixture struct {
	s     *Session
	gw    *memGateway
	clock *debounce.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := newMemGateway()
	clock := &debounce.ManualClock{}
	logger := testutil.NewTestLogger(t)
	s, err := New(Config{
		Client:      client.New(gw, logger),
		Debounce:    interval,
		AfterFunc:   clock.AfterFunc,
		FormatQuery: func(q string) string { return q },
		Logger:      logger,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &fixture{s: s, gw: gw, clock: clock}
}

// edit sets the expression, fires the debounce timer and waits for the build.
func (f *fixture) edit(t *testing.T, expression string) State {
	t.Helper()
	require.NoError(t, f.s.SetExpression(expression))
	f.clock.Advance(interval)
	f.wait(t)
	return f.s.Snapshot()
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.s.WaitIdle(ctx))
}

func usersAst(hints ...string) *pine.Ast {
	ast := &pine.Ast{
		SelectedTables: []pine.Table{{Schema: "public", Table: "users", Alias: "u"}},
		Context:        "u",
		Operation:      pine.Operation{Type: pine.OperationTable},
	}
	for _, h := range hints {
		ast.Hints.Table = append(ast.Hints.Table, pine.TableHint{Schema: "public", Table: h, Column: "user_id", Pine: h})
	}
	return ast
}

func respond(resp *pine.Response) handler {
	return func(context.Context, string) (*pine.Response, error) { return resp, nil }
}

func (g *memGateway) evalCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.evals...)
}
