// Package session orchestrates one Pine editing session.
//
// A Session owns the expression and everything derived from it. Edits are
// debounced into build calls, build responses are applied through a single
// locked reducer, and evaluations are dispatched by operation type. Every
// build and evaluation takes a number from a monotonic sequence; a response
// older than one already applied is dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/debounce"
	"github.com/leapstack-labs/pine/internal/evaluate"
	"github.com/leapstack-labs/pine/internal/graph"
	"github.com/leapstack-labs/pine/internal/notifier"
	"github.com/leapstack-labs/pine/internal/sqlfmt"
	"github.com/leapstack-labs/pine/pkg/pine"
)

// Errors returned to callers. Network and server failures are not returned
// from builds; they are stored on the session state.
var (
	ErrNoCandidate = errors.New("no candidate selected")
	ErrClosed      = errors.New("session closed")
	ErrInvalidMode = errors.New("invalid mode")
)

// Formatter lays out a generated query for display.
type Formatter func(query string) string

// Config configures a Session.
type Config struct {
	// ID identifies the session. Defaults to "session-<uuid>".
	ID string
	// Client talks to the Pine service (required).
	Client *client.Client
	// Dispatcher overrides the evaluation dispatcher built from Client and Evaluation.
	Dispatcher *evaluate.Dispatcher
	// Evaluation configures the default dispatcher.
	Evaluation evaluate.Options
	// Debounce is the quiet period before a build. Defaults to 150ms.
	Debounce time.Duration
	// AfterFunc schedules debounce timers; tests pass a manual clock.
	AfterFunc debounce.AfterFunc
	// FormatQuery formats queries for display. Defaults to sqlfmt.Format.
	FormatQuery Formatter
	// Mode is the initial mode. Defaults to ModeNone.
	Mode   Mode
	Logger *slog.Logger
}

// Session is the per-tab orchestrator. It is safe for concurrent use.
type Session struct {
	id         string
	client     *client.Client
	dispatcher *evaluate.Dispatcher
	debouncer  *debounce.Debouncer
	format     Formatter
	notifier   *notifier.Notifier
	logger     *slog.Logger

	// ctx is canceled on Close and bounds in-flight builds.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	cursor       Cursor
	revision     uint64
	seq          uint64
	appliedBuild uint64
	appliedEval  uint64
	scheduled    bool
	trigger      uint64
	inflight     int
	evaluating   int
	idle         chan struct{}
	idleClosed   bool
	closed       bool
}

// NewID returns a fresh session id.
func NewID() string {
	return "session-" + uuid.NewString()
}

// New creates a session.
func New(cfg Config) (*Session, error) {
	if cfg.Client == nil {
		return nil, errors.New("session: client is required")
	}
	if cfg.ID == "" {
		cfg.ID = NewID()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.FormatQuery == nil {
		cfg.FormatQuery = sqlfmt.Format
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeNone
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("session", cfg.ID)

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		opts := cfg.Evaluation
		if opts.Logger == nil {
			opts.Logger = logger
		}
		dispatcher = evaluate.NewDispatcher(cfg.Client, opts)
	}

	var debounceOpts []debounce.Option
	if cfg.AfterFunc != nil {
		debounceOpts = append(debounceOpts, debounce.WithAfterFunc(cfg.AfterFunc))
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Session{
		id:         cfg.ID,
		client:     cfg.Client,
		dispatcher: dispatcher,
		debouncer:  debounce.New(cfg.Debounce, debounceOpts...),
		format:     cfg.FormatQuery,
		notifier:   notifier.New(),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		state:      newState(cfg.ID, cfg.Mode),
		idle:       idle,
		idleClosed: true,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe returns a channel receiving the revision after every change.
func (s *Session) Subscribe() chan uint64 {
	return s.notifier.Subscribe()
}

// Unsubscribe releases a channel from Subscribe.
func (s *Session) Unsubscribe(ch chan uint64) {
	s.notifier.Unsubscribe(ch)
}

// SetExpression replaces the expression and schedules a build once edits
// settle. An empty expression still builds.
func (s *Session) SetExpression(expression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.state.Expression = expression
	s.scheduled = true
	s.trigger++
	trigger := s.trigger
	s.updateIdleLocked()
	s.changedLocked()

	s.debouncer.Trigger(func() { s.startBuild(trigger, expression) })
	return nil
}

// Rebuild schedules a build of the current expression.
func (s *Session) Rebuild() error {
	s.mu.Lock()
	expression := s.state.Expression
	s.mu.Unlock()
	return s.SetExpression(expression)
}

// startBuild runs when the debounce timer fires. The network call runs on
// its own goroutine so timer callbacks never block. A callback that fired
// just before a newer edit carries an old trigger and does nothing; the newer
// timer is still pending and owns the build.
func (s *Session) startBuild(trigger uint64, expression string) {
	s.mu.Lock()
	if s.closed || trigger != s.trigger {
		s.mu.Unlock()
		return
	}
	s.scheduled = false
	s.inflight++
	s.seq++
	seq := s.seq

	// A new build invalidates prior suggestion positions.
	s.cursor.Reset()
	s.recomputeGraphLocked()
	s.state.Building = true
	s.updateIdleLocked()
	s.changedLocked()
	s.mu.Unlock()

	s.logger.Debug("building expression", "seq", seq, "expression", expression)
	go func() {
		resp, err := s.client.Build(s.ctx, expression)
		s.applyBuild(seq, resp, err)
	}()
}

func (s *Session) applyBuild(seq uint64, resp *pine.Response, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	s.state.Building = s.inflight > 0
	defer s.updateIdleLocked()

	if s.closed {
		return
	}
	if seq < s.appliedBuild {
		s.logger.Debug("discarding stale build response", "seq", seq, "applied", s.appliedBuild)
		s.changedLocked()
		return
	}
	s.appliedBuild = seq

	if err != nil {
		s.logger.Warn("build failed", "seq", seq, "error", err)
		s.state.Error = err.Error()
		s.state.ErrorType = ""
		s.changedLocked()
		return
	}

	s.state.Response = resp
	s.state.Connection = resp.ConnectionID
	if s.state.Connection == "" {
		s.state.Connection = "-"
	}
	s.state.Error = resp.Error
	s.state.ErrorType = resp.ErrorType

	// A response without an AST (typically a server error) keeps the last
	// valid query and graph visible next to the error.
	if resp.Ast != nil || resp.Query != "" {
		s.state.Query = s.formatQuery(resp.Query)
	}
	if resp.Ast != nil {
		s.state.Ast = resp.Ast
		s.state.Operation = pine.OperationOf(resp.Ast)
		s.state.Message = messageFromHints(resp.Ast.Hints)
		s.recomputeGraphLocked()
	}
	s.changedLocked()
}

func (s *Session) formatQuery(query string) string {
	if query == "" {
		return ""
	}
	return s.format(query)
}

// recomputeGraphLocked regenerates the graph from the current AST.
func (s *Session) recomputeGraphLocked() {
	s.applyGraphLocked(s.state.Ast)
}

// applyGraphLocked derives the graph and candidate from ast and writes the
// clamped index back to the cursor.
func (s *Session) applyGraphLocked(ast *pine.Ast) {
	res := graph.Generate(ast, s.cursor.Index())
	s.cursor.Set(res.Index)
	s.state.Graph = res.Graph
	s.state.Candidate = res.Candidate
	s.state.CandidateIndex = res.Index
}

// SelectNextCandidate moves the cursor by offset and recomputes the graph
// from the AST already known. It returns the new candidate, nil when there
// are no suggestions.
func (s *Session) SelectNextCandidate(offset int) (*pine.TableHint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.cursor.SelectNext(offset)
	s.recomputeGraphLocked()
	s.changedLocked()
	if s.state.Candidate == nil {
		return nil, nil
	}
	c := *s.state.Candidate
	return &c, nil
}

// ResetCandidate clears the cursor.
func (s *Session) ResetCandidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cursor.Reset()
	s.recomputeGraphLocked()
	s.changedLocked()
	return nil
}

// ExpressionUsingCandidate returns the expression with its final stage
// replaced by the candidate fragment. The caller decides whether to commit it.
func (s *Session) ExpressionUsingCandidate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Candidate == nil {
		return "", ErrNoCandidate
	}
	return pine.Prettify(pine.ReplaceLastStage(s.state.Expression, s.state.Candidate.Pine)), nil
}

// ApplyCandidate commits ExpressionUsingCandidate as the new expression.
func (s *Session) ApplyCandidate() (string, error) {
	expression, err := s.ExpressionUsingCandidate()
	if err != nil {
		return "", err
	}
	if err := s.SetExpression(expression); err != nil {
		return "", err
	}
	return expression, nil
}

// SetMode switches the view.
func (s *Session) SetMode(mode Mode) error {
	m, err := ParseMode(string(mode))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state.Mode != m {
		s.state.Mode = m
		s.changedLocked()
	}
	return nil
}

// Evaluate runs the expression through the plugin selected by the operation
// of the last applied build. Failures are stored on the state and also
// returned.
func (s *Session) Evaluate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.seq++
	seq := s.seq
	req := evaluate.Request{Expression: s.state.Expression, Ast: s.state.Ast}
	s.evaluating++
	s.state.Evaluating = true
	s.changedLocked()
	s.mu.Unlock()

	out, err := s.dispatcher.Evaluate(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluating--
	s.state.Evaluating = s.evaluating > 0
	defer s.changedLocked()

	if s.closed {
		return ErrClosed
	}
	if seq < s.appliedEval {
		s.logger.Debug("discarding stale evaluation", "seq", seq, "applied", s.appliedEval)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		return nil
	}
	s.appliedEval = seq

	// A build applied since the evaluation started owns the query, the
	// connection and the graph.
	s.applyOutcomeLocked(out, seq < s.appliedBuild)
	if err != nil {
		s.logger.Warn("evaluation failed", "error", err)
		s.state.Error, s.state.ErrorType = errorFields(err)
		return fmt.Errorf("evaluate: %w", err)
	}
	s.state.Error, s.state.ErrorType = "", ""
	return nil
}

func (s *Session) applyOutcomeLocked(out evaluate.Outcome, outdated bool) {
	switch o := out.(type) {
	case *evaluate.TableResult:
		s.state.Loaded = true
		s.state.Columns = o.Columns
		s.state.Rows = o.Rows
		s.state.DeletePlan = nil
		if outdated {
			return
		}
		if o.Query != "" {
			s.state.Query = s.formatQuery(o.Query)
		}
		if o.Connection != "" {
			s.state.Connection = o.Connection
		}
	case *evaluate.DeletePlan:
		// Only the graph and the plan change; the expression and the
		// displayed query stay as they were.
		s.state.DeletePlan = o.Plan
		if o.Ast != nil && !outdated {
			s.applyGraphLocked(o.Ast)
		}
	}
}

func errorFields(err error) (string, string) {
	var serr *client.ServerError
	if errors.As(err, &serr) {
		return serr.Message, serr.Type
	}
	return err.Error(), ""
}

// WaitIdle blocks until no build is scheduled or in flight.
func (s *Session) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.scheduled && s.inflight == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the debounce timer, cancels in-flight builds and closes every
// subscription. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.scheduled = false
	s.updateIdleLocked()
	s.mu.Unlock()

	s.debouncer.Stop()
	s.cancel()
	s.notifier.Close()
	s.logger.Debug("session closed")
}

func (s *Session) updateIdleLocked() {
	busy := s.scheduled || s.inflight > 0
	switch {
	case !busy && !s.idleClosed:
		close(s.idle)
		s.idleClosed = true
	case busy && s.idleClosed:
		s.idle = make(chan struct{})
		s.idleClosed = false
	}
}

func (s *Session) changedLocked() {
	s.revision++
	s.state.Revision = s.revision
	s.notifier.Broadcast(s.revision)
}
