package ui

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/session"
	"github.com/leapstack-labs/pine/pkg/pine"
)

const (
	cookieName  = "pine"
	cookieIDKey = "session_id"
)

// SetupRoutes configures the session API routes.
func SetupRoutes(router chi.Router, h *Handlers) {
	router.Route("/api", func(r chi.Router) {
		r.Get("/session", h.CurrentSession)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.OpenSession)
			r.Get("/", h.ListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.CloseSession)
				r.Put("/expression", h.SetExpression)
				r.Post("/candidate", h.SelectCandidate)
				r.Post("/candidate/apply", h.ApplyCandidate)
				r.Post("/mode", h.SetMode)
				r.Post("/evaluate", h.Evaluate)
				r.Get("/updates", h.Updates)
			})
		})
	})
}

// Handlers provides the session API handlers.
type Handlers struct {
	manager      *session.Manager
	sessionStore sessions.Store
	logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(manager *session.Manager, sessionStore sessions.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		manager:      manager,
		sessionStore: sessionStore,
		logger:       logger,
	}
}

// ExpressionSignals is the body of PUT .../expression.
type ExpressionSignals struct {
	Expression string `json:"expression"`
}

// CandidateSignals is the body of POST .../candidate. Reset clears the
// selection; otherwise the cursor moves by Offset.
type CandidateSignals struct {
	Offset int  `json:"offset"`
	Reset  bool `json:"reset"`
}

// ModeSignals is the body of POST .../mode.
type ModeSignals struct {
	Mode string `json:"mode"`
}

// CandidateResponse describes the cursor after a move.
type CandidateResponse struct {
	Candidate      *pine.TableHint `json:"candidate"`
	CandidateIndex *int            `json:"candidateIndex"`
	Preview        string          `json:"preview,omitempty"`
}

// ExpressionResponse carries an expression produced by the session.
type ExpressionResponse struct {
	Expression string `json:"expression"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// OpenSession creates a session and makes it the browser's current one.
func (h *Handlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.bind(w, r, s.ID())
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// ListSessions returns a snapshot of every open session.
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	list := h.manager.List()
	out := make([]session.State, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

// CurrentSession returns the session bound to the cookie, opening one when
// the cookie is missing or names a closed session.
func (h *Handlers) CurrentSession(w http.ResponseWriter, r *http.Request) {
	if c, _ := h.sessionStore.Get(r, cookieName); c != nil {
		if id, ok := c.Values[cookieIDKey].(string); ok {
			if s, ok := h.manager.Get(id); ok {
				writeJSON(w, http.StatusOK, s.Snapshot())
				return
			}
		}
	}
	h.OpenSession(w, r)
}

// GetSession returns one session snapshot.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// CloseSession closes a session.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "id")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetExpression replaces the expression. With ?wait=true the response is
// sent once the resulting build has been applied.
func (h *Handlers) SetExpression(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var signals ExpressionSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.SetExpression(signals.Expression); err != nil {
		writeSessionError(w, err)
		return
	}

	status := http.StatusAccepted
	if r.URL.Query().Get("wait") == "true" {
		if err := s.WaitIdle(r.Context()); err != nil {
			writeError(w, http.StatusRequestTimeout, err)
			return
		}
		status = http.StatusOK
	}
	writeJSON(w, status, s.Snapshot())
}

// SelectCandidate moves or resets the candidate cursor.
func (h *Handlers) SelectCandidate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var signals CandidateSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	if signals.Reset {
		err = s.ResetCandidate()
	} else {
		_, err = s.SelectNextCandidate(signals.Offset)
	}
	if err != nil {
		writeSessionError(w, err)
		return
	}

	st := s.Snapshot()
	resp := CandidateResponse{Candidate: st.Candidate, CandidateIndex: st.CandidateIndex}
	if st.Candidate != nil {
		resp.Preview, _ = s.ExpressionUsingCandidate()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApplyCandidate commits the selected candidate into the expression.
func (h *Handlers) ApplyCandidate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	expression, err := s.ApplyCandidate()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExpressionResponse{Expression: expression})
}

// SetMode switches the session mode.
func (h *Handlers) SetMode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var signals ModeSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.SetMode(session.Mode(signals.Mode)); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Evaluate runs the expression and returns the resulting snapshot. Failures
// are reported with 502 and the snapshot still carries partial results.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.Evaluate(r.Context()); err != nil {
		if errors.Is(err, session.ErrClosed) {
			writeSessionError(w, err)
			return
		}
		st := s.Snapshot()
		resp := ErrorResponse{Error: st.Error, Type: st.ErrorType}
		if resp.Error == "" {
			// A superseded evaluation leaves the state alone.
			resp.Error, resp.Type = err.Error(), ""
			var serr *client.ServerError
			if errors.As(err, &serr) {
				resp.Type = serr.Type
			}
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Updates is the long-lived SSE endpoint for one session. It patches the
// full snapshot as signals right away and again after every change, until
// the client goes away or the session closes.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	updates := s.Subscribe()
	defer s.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(s.Snapshot()); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-updates:
			if !open {
				return
			}
			if err := sse.MarshalAndPatchSignals(s.Snapshot()); err != nil {
				_ = sse.ConsoleError(err)
				return
			}
		}
	}
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, ok := h.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrUnknownSession)
		return nil, false
	}
	return s, true
}

func (h *Handlers) bind(w http.ResponseWriter, r *http.Request, id string) {
	c, _ := h.sessionStore.Get(r, cookieName)
	if c == nil {
		return
	}
	c.Values[cookieIDKey] = id
	if err := c.Save(r, w); err != nil {
		h.logger.Warn("failed to save session cookie", "error", err)
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err)
	case errors.Is(err, session.ErrNoCandidate):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, session.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
