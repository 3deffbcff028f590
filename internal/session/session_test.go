package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/evaluate"
	"github.com/leapstack-labs/pine/internal/graph"
	"github.com/leapstack-labs/pine/pkg/pine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t)
	st := f.s.Snapshot()

	assert.True(t, strings.HasPrefix(st.ID, "session-"))
	assert.Equal(t, ModeNone, st.Mode)
	assert.Equal(t, "-", st.Connection)
	assert.Equal(t, pine.OperationTable, st.Operation.Type)
	assert.Equal(t, graph.Empty(), st.Graph)
	assert.Nil(t, st.CandidateIndex)
}

func TestSession_EmptyExpressionBuilds(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: &pine.Ast{
		Hints:          pine.Hints{Table: []pine.TableHint{}},
		SelectedTables: []pine.Table{},
		Joins:          []pine.Join{},
		Operation:      pine.Operation{Type: pine.OperationTable},
	}}))

	st := f.edit(t, "")

	assert.Equal(t, []string{""}, f.gw.buildCalls())
	require.NotNil(t, st.Ast)
	assert.Empty(t, st.Graph.Nodes)
	assert.Empty(t, st.Graph.Edges)
	assert.Nil(t, st.Candidate)
	assert.Empty(t, st.Error)
}

func TestSession_DebounceCoalescesEdits(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"u", "us", "use", "user", "users |"} {
		require.NoError(t, f.s.SetExpression(text))
		f.clock.Advance(interval / 3)
	}
	assert.Empty(t, f.gw.buildCalls())

	f.clock.Advance(interval)
	f.wait(t)

	assert.Equal(t, []string{"users"}, f.gw.buildCalls())
	assert.Equal(t, "users |", f.s.Snapshot().Expression)
}

func TestSession_BuildAppliesResponse(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{
		Query:        "SELECT * FROM users",
		ConnectionID: "local",
		Ast:          usersAst("orders", "sessions"),
	}))

	st := f.edit(t, "users |")

	assert.Equal(t, "SELECT * FROM users", st.Query)
	assert.Equal(t, "local", st.Connection)
	assert.Equal(t, "orders, sessions", st.Message)
	assert.Equal(t, pine.OperationTable, st.Operation.Type)
	assert.Len(t, st.Graph.Nodes, 3)
	assert.Len(t, st.Graph.Edges, 2)
	assert.False(t, st.Building)
}

func TestSession_MessageIsTruncated(t *testing.T) {
	f := newFixture(t)
	var hints []string
	for i := 0; i < 40; i++ {
		hints = append(hints, "table_"+strings.Repeat("x", i%5))
	}
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst(hints...)}))

	st := f.edit(t, "users |")
	assert.Len(t, st.Message, 140)
}

func TestSession_BuildFailureKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Query: "SELECT * FROM users", Ast: usersAst("orders")}))
	before := f.edit(t, "users |")

	f.gw.onBuild(func(context.Context, string) (*pine.Response, error) { return nil, errUnavailable })
	after := f.edit(t, "users | orders")

	assert.Contains(t, after.Error, "no response when trying to build")
	assert.Empty(t, after.ErrorType)
	assert.Same(t, before.Ast, after.Ast)
	assert.Equal(t, before.Query, after.Query)
	assert.Equal(t, before.Graph, after.Graph)
}

func TestSession_ServerErrorKeepsQuery(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Query: "SELECT * FROM users", Ast: usersAst()}))
	f.edit(t, "users")

	f.gw.onBuild(respond(&pine.Response{Error: "unexpected token", ErrorType: "parse"}))
	st := f.edit(t, "users | where:")

	assert.Equal(t, "unexpected token", st.Error)
	assert.Equal(t, "parse", st.ErrorType)
	assert.Equal(t, "SELECT * FROM users", st.Query)
	require.NotNil(t, st.Ast)

	f.gw.onBuild(respond(&pine.Response{Query: "SELECT 1", Ast: usersAst()}))
	st = f.edit(t, "users")
	assert.Empty(t, st.Error)
	assert.Empty(t, st.ErrorType)
}

func TestSession_StaleBuildIsDiscarded(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.gw.onBuild(func(_ context.Context, x string) (*pine.Response, error) {
		if x == "a" {
			<-release
			return &pine.Response{Query: "A", Ast: &pine.Ast{Context: "a"}}, nil
		}
		return &pine.Response{Query: "B", Ast: &pine.Ast{Context: "b"}}, nil
	})

	require.NoError(t, f.s.SetExpression("a"))
	f.clock.Advance(interval)
	require.NoError(t, f.s.SetExpression("b"))
	f.clock.Advance(interval)

	require.Eventually(t, func() bool {
		return f.s.Snapshot().Query == "B"
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	f.wait(t)

	st := f.s.Snapshot()
	assert.Equal(t, "B", st.Query)
	assert.Equal(t, "b", st.Ast.Context)
	assert.ElementsMatch(t, []string{"a", "b"}, f.gw.buildCalls())
}

func TestSession_OutOfOrderOlderFirstStillApplies(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.gw.onBuild(func(_ context.Context, x string) (*pine.Response, error) {
		if x == "b" {
			<-release
		}
		return &pine.Response{Query: strings.ToUpper(x), Ast: &pine.Ast{}}, nil
	})

	require.NoError(t, f.s.SetExpression("a"))
	f.clock.Advance(interval)
	require.NoError(t, f.s.SetExpression("b"))
	f.clock.Advance(interval)

	require.Eventually(t, func() bool { return f.s.Snapshot().Query == "A" }, 2*time.Second, 5*time.Millisecond)
	close(release)
	f.wait(t)
	assert.Equal(t, "B", f.s.Snapshot().Query)
}

func TestSession_CandidateCycling(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst("orders", "sessions", "accounts")}))
	f.edit(t, "users |")

	steps := []struct {
		offset int
		want   int
	}{
		{5, 0}, // unset cursor always starts at 0
		{1, 1},
		{5, 0},
		{-1, 2},
		{-7, 1},
	}
	for _, step := range steps {
		c, err := f.s.SelectNextCandidate(step.offset)
		require.NoError(t, err)
		require.NotNil(t, c)
		st := f.s.Snapshot()
		require.NotNil(t, st.CandidateIndex)
		assert.Equal(t, step.want, *st.CandidateIndex, "offset %d", step.offset)
		assert.Equal(t, st.Candidate.Pine, c.Pine)
	}
}

func TestSession_CandidateCyclesBackToStart(t *testing.T) {
	f := newFixture(t)
	hints := []string{"a", "b", "c", "d"}
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst(hints...)}))
	f.edit(t, "users |")

	first, err := f.s.SelectNextCandidate(1)
	require.NoError(t, err)
	for i := 0; i < len(hints); i++ {
		c, err := f.s.SelectNextCandidate(1)
		require.NoError(t, err)
		idx := *f.s.Snapshot().CandidateIndex
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, len(hints))
		if i == len(hints)-1 {
			assert.Equal(t, first.Pine, c.Pine)
		}
	}
}

func TestSession_NoHintsMeansNoCandidate(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst()}))
	f.edit(t, "users")

	c, err := f.s.SelectNextCandidate(1)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Nil(t, f.s.Snapshot().CandidateIndex)

	_, err = f.s.ExpressionUsingCandidate()
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestSession_CandidateMarksGraphNode(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst("orders")}))
	f.edit(t, "users |")

	_, err := f.s.SelectNextCandidate(1)
	require.NoError(t, err)

	st := f.s.Snapshot()
	require.NotNil(t, st.Candidate)
	assert.Equal(t, "orders", st.Candidate.Pine)
	assert.Equal(t, graph.NodeCandidate, st.Graph.Nodes[1].Type)
}

func TestSession_BuildResetsCandidate(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst("orders")}))
	f.edit(t, "users |")
	_, err := f.s.SelectNextCandidate(1)
	require.NoError(t, err)

	release := make(chan struct{})
	f.gw.onBuild(func(context.Context, string) (*pine.Response, error) {
		<-release
		return &pine.Response{Ast: usersAst("orders")}, nil
	})
	require.NoError(t, f.s.SetExpression("users | "))
	f.clock.Advance(interval)

	st := f.s.Snapshot()
	assert.Nil(t, st.CandidateIndex)
	assert.Nil(t, st.Candidate)
	assert.True(t, st.Building)

	close(release)
	f.wait(t)
	assert.Nil(t, f.s.Snapshot().Candidate)
}

func TestSession_ExpressionUsingCandidate(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst("orders")}))
	f.edit(t, "users |")

	_, err := f.s.ExpressionUsingCandidate()
	require.ErrorIs(t, err, ErrNoCandidate)

	_, err = f.s.SelectNextCandidate(1)
	require.NoError(t, err)

	got, err := f.s.ExpressionUsingCandidate()
	require.NoError(t, err)
	assert.Equal(t, "users | orders", got)
	assert.Equal(t, "users |", f.s.Snapshot().Expression, "caller commits the expression")
}

func TestSession_ApplyCandidate(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst("orders")}))
	f.edit(t, "users | ord")
	_, err := f.s.SelectNextCandidate(1)
	require.NoError(t, err)

	got, err := f.s.ApplyCandidate()
	require.NoError(t, err)
	assert.Equal(t, "users | orders", got)

	f.clock.Advance(interval)
	f.wait(t)
	assert.Equal(t, "users | orders", f.s.Snapshot().Expression)
	assert.Equal(t, []string{"users | ord", "users | orders"}, f.gw.buildCalls())
}

func TestSession_SetMode(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.s.SetMode(ModeGraph))
	assert.Equal(t, ModeGraph, f.s.Snapshot().Mode)

	err := f.s.SetMode("monitor")
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, ModeGraph, f.s.Snapshot().Mode)
}

func TestSession_BuildsNeverChangeMode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.SetMode(ModeInput))
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst("orders")}))

	f.edit(t, "users |")
	assert.Equal(t, ModeInput, f.s.Snapshot().Mode)
}

func TestSession_EvaluateTable(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(respond(&pine.Response{Ast: usersAst()}))
	f.gw.onEval(respond(&pine.Response{
		Query:        "SELECT id FROM users",
		ConnectionID: "local",
		Result:       [][]any{{"id"}, {1.0}, {2.0}},
	}))
	f.edit(t, "users")

	require.NoError(t, f.s.Evaluate(context.Background()))

	st := f.s.Snapshot()
	assert.True(t, st.Loaded)
	assert.Equal(t, []string{"id"}, st.Columns)
	assert.Equal(t, [][]any{{1.0}, {2.0}}, st.Rows)
	assert.Equal(t, "SELECT id FROM users", st.Query)
	assert.Equal(t, "local", st.Connection)
	assert.False(t, st.Evaluating)
}

func TestSession_EvaluateServerError(t *testing.T) {
	f := newFixture(t)
	f.gw.onEval(respond(&pine.Response{Error: "permission denied", ErrorType: "sql"}))

	err := f.s.Evaluate(context.Background())
	require.Error(t, err)

	st := f.s.Snapshot()
	assert.Equal(t, "permission denied", st.Error)
	assert.Equal(t, "sql", st.ErrorType)
	assert.False(t, st.Loaded)
}

func TestSession_EvaluateTransportError(t *testing.T) {
	f := newFixture(t)
	f.gw.onEval(func(context.Context, string) (*pine.Response, error) { return nil, errUnavailable })

	err := f.s.Evaluate(context.Background())
	assert.ErrorIs(t, err, client.ErrNoResponse)
	assert.Contains(t, f.s.Snapshot().Error, "no response when trying to eval")
}

func TestSession_EvaluateDeleteKeepsExpressionAndQuery(t *testing.T) {
	f := newFixture(t)
	deleteAst := usersAst()
	deleteAst.Operation = pine.Operation{Type: pine.OperationDelete}
	f.gw.onBuild(func(_ context.Context, x string) (*pine.Response, error) {
		if strings.Contains(x, "limit:") {
			return &pine.Response{
				Query: "DELETE FROM users",
				Ast: &pine.Ast{
					SelectedTables: []pine.Table{{Schema: "public", Table: "users", Alias: "d"}},
					Context:        "d",
				},
			}, nil
		}
		if strings.HasSuffix(x, "|") {
			return &pine.Response{Ast: &pine.Ast{}}, nil
		}
		return &pine.Response{Query: "SELECT * FROM users", Ast: deleteAst}, nil
	})
	f.gw.onEval(func(_ context.Context, x string) (*pine.Response, error) {
		switch {
		case strings.HasSuffix(x, "count:"):
			return &pine.Response{Result: [][]any{{"count"}, {2.0}}}, nil
		case strings.HasSuffix(x, "| 1"):
			return &pine.Response{Result: [][]any{{"id"}}}, nil
		}
		return &pine.Response{Query: "DELETE"}, nil
	})

	before := f.edit(t, "users | delete!")
	require.Equal(t, pine.OperationDelete, before.Operation.Type)

	require.NoError(t, f.s.Evaluate(context.Background()))

	st := f.s.Snapshot()
	assert.Equal(t, "users | delete!", st.Expression)
	assert.Equal(t, before.Query, st.Query)
	require.NotNil(t, st.DeletePlan)
	assert.Equal(t, "users", st.DeletePlan.Root)
	assert.Equal(t, int64(2), st.DeletePlan.Total())
	require.Len(t, st.Graph.Nodes, 1)
	assert.Equal(t, "d", st.Graph.Nodes[0].ID)
	assert.False(t, st.Loaded)
}

func TestSession_EvaluateFinishingAfterNewerBuildKeepsBuildQuery(t *testing.T) {
	f := newFixture(t)
	f.gw.onBuild(func(_ context.Context, x string) (*pine.Response, error) {
		return &pine.Response{Query: "Q(" + x + ")", ConnectionID: "build", Ast: usersAst()}, nil
	})
	release := make(chan struct{})
	f.gw.onEval(func(_ context.Context, x string) (*pine.Response, error) {
		<-release
		return &pine.Response{
			Query:        "EVALQ(" + x + ")",
			ConnectionID: "eval",
			Result:       [][]any{{"id"}, {1.0}},
		}, nil
	})

	f.edit(t, "users")

	done := make(chan error, 1)
	go func() { done <- f.s.Evaluate(context.Background()) }()
	require.Eventually(t, func() bool { return len(f.gw.evalCalls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	f.edit(t, "accounts")
	close(release)
	require.NoError(t, <-done)

	st := f.s.Snapshot()
	assert.Equal(t, "accounts", st.Expression)
	assert.Equal(t, "Q(accounts)", st.Query)
	assert.Equal(t, "build", st.Connection)
	assert.True(t, st.Loaded)
	assert.Equal(t, [][]any{{1.0}}, st.Rows)
}

func TestSession_DeleteFinishingAfterNewerBuildKeepsBuildGraph(t *testing.T) {
	f := newFixture(t)
	deleteAst := usersAst()
	deleteAst.Operation = pine.Operation{Type: pine.OperationDelete}
	accountsAst := &pine.Ast{
		SelectedTables: []pine.Table{{Schema: "public", Table: "accounts", Alias: "a"}},
		Context:        "a",
	}
	f.gw.onBuild(func(_ context.Context, x string) (*pine.Response, error) {
		switch {
		case strings.Contains(x, "limit:"):
			return &pine.Response{
				Query: "DELETE FROM users",
				Ast: &pine.Ast{
					SelectedTables: []pine.Table{{Schema: "public", Table: "users", Alias: "d"}},
					Context:        "d",
				},
			}, nil
		case x == "accounts":
			return &pine.Response{Query: "SELECT * FROM accounts", Ast: accountsAst}, nil
		case strings.HasSuffix(x, "|"):
			return &pine.Response{Ast: &pine.Ast{}}, nil
		}
		return &pine.Response{Query: "SELECT * FROM users", Ast: deleteAst}, nil
	})
	release := make(chan struct{})
	f.gw.onEval(func(_ context.Context, x string) (*pine.Response, error) {
		switch {
		case strings.HasSuffix(x, "| 1"):
			<-release
			return &pine.Response{Result: [][]any{{"id"}}}, nil
		case strings.HasSuffix(x, "count:"):
			return &pine.Response{Result: [][]any{{"count"}, {2.0}}}, nil
		}
		return &pine.Response{Query: "DELETE"}, nil
	})

	f.edit(t, "users | delete!")

	done := make(chan error, 1)
	go func() { done <- f.s.Evaluate(context.Background()) }()
	require.Eventually(t, func() bool { return len(f.gw.evalCalls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	f.edit(t, "accounts")
	close(release)
	require.NoError(t, <-done)

	st := f.s.Snapshot()
	assert.Equal(t, "accounts", st.Expression)
	assert.Equal(t, "SELECT * FROM accounts", st.Query)
	require.Len(t, st.Graph.Nodes, 1)
	assert.Equal(t, "a", st.Graph.Nodes[0].ID)
	require.NotNil(t, st.DeletePlan)
	assert.Equal(t, "users", st.DeletePlan.Root)
}

func TestSession_SupersededEvaluationErrorIsWrapped(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var first sync.Once
	f.gw.onEval(func(context.Context, string) (*pine.Response, error) {
		blocked := false
		first.Do(func() { blocked = true })
		if blocked {
			<-release
			return nil, errUnavailable
		}
		return &pine.Response{Result: [][]any{{"id"}}}, nil
	})

	done := make(chan error, 1)
	go func() { done <- f.s.Evaluate(context.Background()) }()
	require.Eventually(t, func() bool { return len(f.gw.evalCalls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.s.Evaluate(context.Background()))
	close(release)

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrNoResponse)
	assert.True(t, strings.HasPrefix(err.Error(), "evaluate: "))
	assert.Empty(t, f.s.Snapshot().Error)
	assert.True(t, f.s.Snapshot().Loaded)
}

func TestSession_SupersededTimerCallbackKeepsEditScheduled(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.s.SetExpression("users"))
	f.s.mu.Lock()
	old := f.s.trigger
	f.s.mu.Unlock()
	require.NoError(t, f.s.SetExpression("users | orders"))

	// The first timer fired just before the second edit and reaches the
	// session afterwards.
	f.s.startBuild(old, "users")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.s.WaitIdle(ctx), context.DeadlineExceeded)
	assert.Empty(t, f.gw.buildCalls())

	f.clock.Advance(interval)
	f.wait(t)
	assert.Equal(t, []string{"users | orders"}, f.gw.buildCalls())
}

func TestSession_EvaluateWithCustomDispatcher(t *testing.T) {
	gw := newMemGateway()
	c := client.New(gw, nil)
	d := evaluate.NewDispatcher(c, evaluate.Options{DryRun: true})
	s, err := New(Config{Client: c, Dispatcher: d})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Evaluate(context.Background()))
	assert.True(t, s.Snapshot().Loaded)
}

func TestSession_Subscribe(t *testing.T) {
	f := newFixture(t)
	ch := f.s.Subscribe()
	defer f.s.Unsubscribe(ch)

	require.NoError(t, f.s.SetMode(ModeGraph))

	select {
	case rev := <-ch:
		assert.Equal(t, f.s.Snapshot().Revision, rev)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestSession_Close(t *testing.T) {
	f := newFixture(t)
	ch := f.s.Subscribe()

	require.NoError(t, f.s.SetExpression("users"))
	f.s.Close()
	f.s.Close()

	_, open := <-ch
	for open {
		_, open = <-ch
	}

	assert.ErrorIs(t, f.s.SetExpression("x"), ErrClosed)
	assert.ErrorIs(t, f.s.Evaluate(context.Background()), ErrClosed)
	_, err := f.s.SelectNextCandidate(1)
	assert.ErrorIs(t, err, ErrClosed)

	f.clock.Advance(interval)
	f.wait(t)
	assert.Empty(t, f.gw.buildCalls())
}

func TestSession_WaitIdleHonorsContext(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.SetExpression("users"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.s.WaitIdle(ctx), context.DeadlineExceeded)
}

func TestSession_RealTimer(t *testing.T) {
	gw := newMemGateway()
	gw.onBuild(respond(&pine.Response{Query: "SELECT 1", Ast: usersAst()}))
	s, err := New(Config{Client: client.New(gw, nil), Debounce: 5 * time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	for _, x := range []string{"u", "us", "users"} {
		require.NoError(t, s.SetExpression(x))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))

	assert.Equal(t, []string{"users"}, gw.buildCalls())
	assert.Equal(t, "SELECT 1", s.Snapshot().Query)
}
