package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/pine/pkg/pine"
)

// Call records one request received by the fake service.
type Call struct {
	Endpoint   string
	Expression string
}

// Handler answers one expression. Returning a nil response makes the fake
// reply with 500 so callers see a transport failure.
type Handler func(expression string) *pine.Response

// Gateway is an httptest server speaking the /api/v1/build and /api/v1/eval
// contract. Handlers may be swapped at any time.
type Gateway struct {
	URL string

	mu    sync.Mutex
	build Handler
	eval  Handler
	calls []Call
}

// NewGateway starts a fake service that answers every call with an empty
// response until handlers are set. The server stops when the test ends.
func NewGateway(t testing.TB) *Gateway {
	t.Helper()

	g := &Gateway{
		build: func(string) *pine.Response { return &pine.Response{Ast: &pine.Ast{}} },
		eval:  func(string) *pine.Response { return &pine.Response{} },
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/build", g.serve("build"))
		r.Post("/eval", g.serve("eval"))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	g.URL = srv.URL
	return g
}

// OnBuild replaces the build handler.
func (g *Gateway) OnBuild(h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.build = h
}

// OnEval replaces the eval handler.
func (g *Gateway) OnEval(h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.eval = h
}

// Calls returns a copy of the recorded requests in arrival order.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Expressions returns the expressions posted to endpoint, in order.
func (g *Gateway) Expressions(endpoint string) []string {
	var out []string
	for _, c := range g.Calls() {
		if c.Endpoint == endpoint {
			out = append(out, c.Expression)
		}
	}
	return out
}

func (g *Gateway) serve(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Expression string `json:"expression"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		g.mu.Lock()
		g.calls = append(g.calls, Call{Endpoint: endpoint, Expression: body.Expression})
		h := g.build
		if endpoint == "eval" {
			h = g.eval
		}
		g.mu.Unlock()

		resp := h(body.Expression)
		if resp == nil {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Table returns an eval response whose result is header plus rows.
func Table(header []any, rows ...[]any) *pine.Response {
	return &pine.Response{Result: append([][]any{header}, rows...)}
}
