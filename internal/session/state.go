package session

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/pine/internal/graph"
	"github.com/leapstack-labs/pine/internal/plan"
	"github.com/leapstack-labs/pine/pkg/pine"
)

// Mode is the view the user is looking at. Only user actions change it.
type Mode string

// Modes.
const (
	ModeInput  Mode = "input"
	ModeGraph  Mode = "graph"
	ModeResult Mode = "result"
	ModeNone   Mode = "none"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeInput, ModeGraph, ModeResult, ModeNone}

// ParseMode validates s as a mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Modes {
		if m == v {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// State is a point-in-time copy of everything a view reads from a session.
type State struct {
	ID       string `json:"id"`
	Revision uint64 `json:"revision"`

	Expression string         `json:"expression"`
	Response   *pine.Response `json:"-"`
	Ast        *pine.Ast      `json:"ast"`
	Query      string         `json:"query"`
	Connection string         `json:"connection"`
	Error      string         `json:"error"`
	ErrorType  string         `json:"errorType"`
	Operation  pine.Operation `json:"operation"`
	Message    string         `json:"message"`
	Mode       Mode           `json:"mode"`

	Graph          graph.Graph     `json:"graph"`
	Candidate      *pine.TableHint `json:"candidate"`
	CandidateIndex *int            `json:"candidateIndex"`

	Loaded  bool     `json:"loaded"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`

	DeletePlan *plan.Plan `json:"deletePlan,omitempty"`

	Building   bool `json:"building"`
	Evaluating bool `json:"evaluating"`
}

func newState(id string, mode Mode) State {
	return State{
		ID:         id,
		Connection: "-",
		Operation:  pine.Operation{Type: pine.OperationTable},
		Mode:       mode,
		Graph:      graph.Empty(),
		Columns:    []string{},
		Rows:       [][]any{},
	}
}

// clone copies the fields that are reassigned in place. Slices and the AST are
// always replaced wholesale, so sharing them is safe.
func (s State) clone() State {
	if s.CandidateIndex != nil {
		i := *s.CandidateIndex
		s.CandidateIndex = &i
	}
	if s.Candidate != nil {
		c := *s.Candidate
		s.Candidate = &c
	}
	return s
}

const maxMessageLength = 140

// messageFromHints lists the hint fragments, truncated for the status line.
func messageFromHints(hints pine.Hints) string {
	fragments := make([]string, 0, len(hints.Table))
	for _, h := range hints.Table {
		fragments = append(fragments, h.Pine)
	}
	msg := []rune(strings.Join(fragments, ", "))
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength]
	}
	return string(msg)
}
