package pine

import (
	"encoding/json"
	"fmt"
)

// OperationType is the detected intent of a built expression.
type OperationType string

// Operation types understood by the evaluation dispatcher.
const (
	OperationTable  OperationType = "table"
	OperationDelete OperationType = "delete"
)

// RelationHas marks a join whose first alias is the parent side.
const RelationHas = "has"

// Table is a table already selected into the query. Alias is its identity.
type Table struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Alias  string `json:"alias"`
}

// TableHint is a candidate next table. Pine holds the expression fragment that
// selects it; Parent is true when applying it joins into the current context.
type TableHint struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Column string `json:"column"`
	Parent bool   `json:"parent"`
	Pine   string `json:"pine"`
}

// Hints groups the suggestions returned by a build.
type Hints struct {
	Table []TableHint `json:"table"`
}

// Join relates two selected aliases. It travels as a JSON triple
// [from, to, relation].
type Join struct {
	From     string
	To       string
	Relation string
}

// UnmarshalJSON decodes the triple form. Short or null triples leave the
// missing fields empty so that partial joins can be skipped downstream.
func (j *Join) UnmarshalJSON(data []byte) error {
	var parts []*string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("join must be an array: %w", err)
	}
	fields := []*string{&j.From, &j.To, &j.Relation}
	for i, f := range fields {
		*f = ""
		if i < len(parts) && parts[i] != nil {
			*f = *parts[i]
		}
	}
	return nil
}

// MarshalJSON encodes the join as a triple.
func (j Join) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{j.From, j.To, j.Relation})
}

// Operation describes what evaluating the expression will do.
type Operation struct {
	Type OperationType `json:"type"`
}

// Ast is the state snapshot returned by a build call. It is replaced
// wholesale on every build and never mutated by the client.
type Ast struct {
	Hints          Hints     `json:"hints"`
	SelectedTables []Table   `json:"selected-tables"`
	Joins          []Join    `json:"joins"`
	Context        string    `json:"context"`
	Operation      Operation `json:"operation"`
}

// OperationOf returns the operation carried by ast, defaulting to a table query.
func OperationOf(ast *Ast) Operation {
	if ast == nil || ast.Operation.Type == "" {
		return Operation{Type: OperationTable}
	}
	return ast.Operation
}

// Response is the body of both the build and the eval endpoints.
// Result is only populated by eval; its first row holds the column names.
type Response struct {
	Query        string  `json:"query"`
	Ast          *Ast    `json:"ast"`
	ConnectionID string  `json:"connection-id"`
	Error        string  `json:"error"`
	ErrorType    string  `json:"error-type"`
	Result       [][]any `json:"result,omitempty"`
}
