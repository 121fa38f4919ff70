package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpr(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Expr
	}{
		{"string", `["string","Peter"]`, Literal{Value: IRString("Peter")}},
		{"number", `["number",2.5]`, Literal{Value: IRNumber(2.5)}},
		{"boolean", `["boolean",true]`, Literal{Value: IRBool(true)}},
		{"null", `["null"]`, Literal{Value: IRNull{}}},
		{"regexp", `["regexp","Z.f","i"]`, RegexpLiteral{Pattern: "Z.f", Flags: "i"}},
		{"regexp without flags", `["regexp","^a"]`, RegexpLiteral{Pattern: "^a"}},
		{"attr", `["attr","name"]`, Attr{Name: "name"}},
		{"attr on base", `["attr",["attr","address"],"city"]`, Attr{Base: Attr{Name: "address"}, Name: "city"}},
		{"array", `["array",[["number",1],["attr","x"]]]`, ArrayLiteral{Elements: []Expr{Literal{Value: IRNumber(1)}, Attr{Name: "x"}}}},
		{"call", `["call","count",[["attr","parents"]]]`, Call{Name: "count", Args: []Expr{Attr{Name: "parents"}}}},
		{"call without args", `["call","$query"]`, Call{Name: "$query"}},
		{"query", `["query",{"querySource":"bla"}]`, QueryExpr{Spec: IRObject{"querySource": IRString("bla")}}},
		{
			"binary",
			`["=",["attr","name"],["string","Peter"]]`,
			BinaryOp{Op: OpEq, Left: Attr{Name: "name"}, Right: Literal{Value: IRString("Peter")}},
		},
		{
			"nested binary",
			`["and",["in",["string","John"],["attr","parents"]],[">",["attr","age"],["number",3]]]`,
			BinaryOp{
				Op:    OpAnd,
				Left:  BinaryOp{Op: OpIn, Left: Literal{Value: IRString("John")}, Right: Attr{Name: "parents"}},
				Right: BinaryOp{Op: OpGreater, Left: Attr{Name: "age"}, Right: Literal{Value: IRNumber(3)}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpr([]byte(tt.wire))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	tests := []struct {
		name string
		wire string
		msg  string
	}{
		{"not a list", `{"a":1}`, "non-empty list"},
		{"empty list", `[]`, "non-empty list"},
		{"tag not string", `[1,2]`, "tag must be a string"},
		{"unknown tag", `["xor",["null"],["null"]]`, "unknown expression tag"},
		{"number arity", `["number"]`, "expected 1 argument"},
		{"string arity", `["string","a","b"]`, "expected 1 argument"},
		{"string missing", `["string"]`, "expected 1 argument"},
		{"number type", `["number","1"]`, "expected number"},
		{"binary arity", `["=",["null"]]`, "expected 2 argument"},
		{"attr name type", `["attr",1]`, "must be a string"},
		{"call args not list", `["call","f","x"]`, "list of expressions"},
		{"bad nested", `["or",["null"],["bogus"]]`, "or right"},
		{"invalid json", `["string"`, "parse expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpr([]byte(tt.wire))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestExprToWireRoundTrip(t *testing.T) {
	wires := []string{
		`["string","x"]`,
		`["number",1]`,
		`["boolean",false]`,
		`["null"]`,
		`["regexp","a+","im"]`,
		`["array",[["string","a"]]]`,
		`["attr",["attr","a"],"b"]`,
		`["call","count",[["attr","parents"]]]`,
		`["query",{"prefix":["user"]}]`,
		`["!=~",["attr","name"],["regexp","^Z",""]]`,
	}

	for _, wire := range wires {
		t.Run(wire, func(t *testing.T) {
			e, err := ParseExpr([]byte(wire))
			require.NoError(t, err)

			data, err := MarshalExpr(e)
			require.NoError(t, err)

			again, err := ParseExpr(data)
			require.NoError(t, err)
			assert.Equal(t, e, again)
		})
	}
}

func TestExprFromGo(t *testing.T) {
	e, err := ExprFromGo([]any{"+", []any{"attr", "name"}, []any{"string", "!"}})
	require.NoError(t, err)
	assert.Equal(t, BinaryOp{Op: OpAdd, Left: Attr{Name: "name"}, Right: Literal{Value: IRString("!")}}, e)
}

func TestIsOperator(t *testing.T) {
	for _, op := range []string{"=", "!=", "=~", "!=~", "<", "<=", ">", ">=", "in", "and", "or", "+", "-", "*", "/", "%"} {
		assert.True(t, IsOperator(op), op)
	}
	assert.False(t, IsOperator("attr"))
	assert.False(t, IsOperator("=="))
}
