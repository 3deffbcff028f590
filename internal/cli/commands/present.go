package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/pine/internal/cli/output"
	"github.com/leapstack-labs/pine/internal/graph"
	"github.com/leapstack-labs/pine/internal/plan"
	"github.com/leapstack-labs/pine/internal/session"
	"github.com/leapstack-labs/pine/pkg/pine"
)

// buildView is the structured form of a build.
type buildView struct {
	Expression string           `json:"expression" yaml:"expression"`
	Query      string           `json:"query" yaml:"query"`
	Connection string           `json:"connection" yaml:"connection"`
	Operation  string           `json:"operation" yaml:"operation"`
	Message    string           `json:"message" yaml:"message"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorType  string           `json:"errorType,omitempty" yaml:"error_type,omitempty"`
	Hints      []pine.TableHint `json:"hints" yaml:"hints"`
}

func newBuildView(st session.State) buildView {
	v := buildView{
		Expression: st.Expression,
		Query:      st.Query,
		Connection: st.Connection,
		Operation:  string(st.Operation.Type),
		Message:    st.Message,
		Error:      st.Error,
		ErrorType:  st.ErrorType,
		Hints:      []pine.TableHint{},
	}
	if st.Ast != nil {
		v.Hints = st.Ast.Hints.Table
	}
	return v
}

func renderBuild(r *output.Renderer, st session.State) error {
	v := newBuildView(st)
	if ok, err := r.Structured(v); ok {
		return err
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(1, "Build"))
		r.Println("")
		r.Println(output.FormatKeyValue("Expression", v.Expression))
		r.Println(output.FormatKeyValue("Operation", v.Operation))
		r.Println(output.FormatKeyValue("Connection", v.Connection))
		if v.Error != "" {
			r.Println(output.FormatKeyValue("Error", v.Error))
		}
		r.Println("")
		if v.Query != "" {
			r.Println(output.FormatCodeBlock("sql", v.Query))
			r.Println("")
		}
		if len(v.Hints) > 0 {
			r.Println(output.FormatHeader(2, "Suggestions"))
			r.Println("")
			for _, h := range v.Hints {
				r.Printf("- `%s` %s.%s\n", h.Pine, h.Schema, h.Table)
			}
			r.Println("")
		}
		return nil
	}

	styles := r.Styles()
	if v.Query != "" {
		r.Println(styles.Code.Render(v.Query))
		r.Println("")
	}
	if v.Error != "" {
		r.Error(v.Error)
	}
	if v.Message != "" {
		r.Printf("%s %s\n", styles.Key.Render("hints:"), v.Message)
	}
	r.Muted(fmt.Sprintf("%s · connection %s", output.Title(v.Operation), v.Connection))
	return nil
}

// graphView is the structured form of a derived graph.
type graphView struct {
	Nodes          []graph.Node    `json:"nodes" yaml:"nodes"`
	Edges          []graph.Edge    `json:"edges" yaml:"edges"`
	Candidate      *pine.TableHint `json:"candidate" yaml:"candidate"`
	CandidateIndex *int            `json:"candidateIndex" yaml:"candidate_index"`
}

func renderGraph(r *output.Renderer, st session.State) error {
	v := graphView{
		Nodes:          st.Graph.Nodes,
		Edges:          st.Graph.Edges,
		Candidate:      st.Candidate,
		CandidateIndex: st.CandidateIndex,
	}
	if ok, err := r.Structured(v); ok {
		return err
	}

	r.Header(1, fmt.Sprintf("Graph (%d nodes, %d edges)", len(v.Nodes), len(v.Edges)))
	if len(v.Nodes) == 0 {
		r.Muted("No tables selected.")
		return nil
	}

	rows := make([][]any, 0, len(v.Nodes))
	for _, n := range v.Nodes {
		rows = append(rows, []any{r.Swatch(n.Color) + n.ID, string(n.Type), n.Schema, n.Table, n.Column})
	}
	r.Table([]string{"id", "type", "schema", "table", "column"}, rows)
	r.Println("")

	for _, e := range v.Edges {
		arrow := "->"
		if e.Animated {
			arrow = "~>"
		}
		r.Printf("  %s %s %s\n", e.Source, arrow, e.Target)
	}
	if len(v.Edges) > 0 {
		r.Println("")
	}

	if v.Candidate != nil && v.CandidateIndex != nil {
		line := fmt.Sprintf("candidate %d: %s (%s.%s)", *v.CandidateIndex, v.Candidate.Pine, v.Candidate.Schema, v.Candidate.Table)
		if r.EffectiveMode() == output.ModeText {
			r.Println(r.Styles().Candidate.Render(line))
		} else {
			r.Println(line)
		}
	}
	return nil
}

// resultView is the structured form of an evaluation.
type resultView struct {
	Query      string     `json:"query" yaml:"query"`
	Connection string     `json:"connection" yaml:"connection"`
	Columns    []string   `json:"columns" yaml:"columns"`
	Rows       [][]any    `json:"rows" yaml:"rows"`
	DeletePlan *plan.Plan `json:"deletePlan,omitempty" yaml:"delete_plan,omitempty"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
}

func renderResult(r *output.Renderer, st session.State) error {
	v := resultView{
		Query:      st.Query,
		Connection: st.Connection,
		Columns:    st.Columns,
		Rows:       st.Rows,
		DeletePlan: st.DeletePlan,
		Error:      st.Error,
	}
	if ok, err := r.Structured(v); ok {
		return err
	}

	if v.DeletePlan != nil {
		return renderDeletePlan(r, v.DeletePlan)
	}
	if !st.Loaded {
		r.Muted("Nothing evaluated.")
		return nil
	}
	r.Table(v.Columns, v.Rows)
	return nil
}

func renderDeletePlan(r *output.Renderer, p *plan.Plan) error {
	title := "Delete plan"
	if p.DryRun {
		title += " (dry run)"
	}
	r.Header(1, title)
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Root", p.Root))
		r.Println(output.FormatKeyValue("Column", p.Column))
		r.Println(output.FormatKeyValue("Limit", fmt.Sprintf("%d", p.Limit)))
		r.Println("")
	} else {
		r.Muted(fmt.Sprintf("root %s · column %s · limit %d", p.Root, p.Column, p.Limit))
	}

	rows := make([][]any, 0, len(p.Steps))
	for _, s := range p.Steps {
		status := "pending"
		switch {
		case s.Error != "":
			status = "failed: " + s.Error
		case s.Executed:
			status = "deleted"
		case p.DryRun:
			status = "planned"
		}
		table := s.Table
		if table == "" {
			table = "(root)"
		}
		rows = append(rows, []any{s.Level, table, s.Count, status, s.Expression})
	}
	r.Table([]string{"level", "table", "rows", "status", "expression"}, rows)
	r.Println(fmt.Sprintf("Total rows: %d", p.Total()))
	return nil
}

// hintFragments lists the fragments offered after the current expression.
func hintFragments(st session.State) []string {
	if st.Ast == nil {
		return nil
	}
	out := make([]string, 0, len(st.Ast.Hints.Table))
	for _, h := range st.Ast.Hints.Table {
		if f := strings.TrimSpace(h.Pine); f != "" {
			out = append(out, f)
		}
	}
	return out
}
