package pine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Join
	}{
		{"full triple", `["u","o","has"]`, Join{From: "u", To: "o", Relation: "has"}},
		{"missing relation", `["u","o"]`, Join{From: "u", To: "o"}},
		{"null entries", `[null,"o","of"]`, Join{To: "o", Relation: "of"}},
		{"empty", `[]`, Join{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j Join
			require.NoError(t, json.Unmarshal([]byte(tt.input), &j))
			assert.Equal(t, tt.want, j)
		})
	}
}

func TestJoin_UnmarshalJSON_NotArray(t *testing.T) {
	var j Join
	assert.Error(t, json.Unmarshal([]byte(`{"from":"u"}`), &j))
}

func TestResponse_Decode(t *testing.T) {
	body := `{
		"query": "SELECT * FROM users",
		"connection-id": "local",
		"error": "",
		"error-type": "",
		"ast": {
			"hints": {"table": [{"schema":"public","table":"orders","column":"user_id","parent":false,"pine":"orders"}]},
			"selected-tables": [{"schema":"public","table":"users","alias":"u"}],
			"joins": [["u","o","has"]],
			"context": "u",
			"operation": {"type": "table"}
		}
	}`

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	assert.Equal(t, "local", resp.ConnectionID)
	require.NotNil(t, resp.Ast)
	assert.Equal(t, "u", resp.Ast.Context)
	assert.Equal(t, []Table{{Schema: "public", Table: "users", Alias: "u"}}, resp.Ast.SelectedTables)
	assert.Equal(t, "orders", resp.Ast.Hints.Table[0].Pine)
	assert.Equal(t, Join{From: "u", To: "o", Relation: "has"}, resp.Ast.Joins[0])
	assert.Equal(t, OperationTable, resp.Ast.Operation.Type)
}

func TestOperationOf(t *testing.T) {
	assert.Equal(t, OperationTable, OperationOf(nil).Type)
	assert.Equal(t, OperationTable, OperationOf(&Ast{}).Type)
	assert.Equal(t, OperationDelete, OperationOf(&Ast{Operation: Operation{Type: OperationDelete}}).Type)
}
