package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docstore/internal/ir"
)

func mustExpr(t *testing.T, wire string) ir.Expr {
	t.Helper()
	e, err := ir.ParseExpr([]byte(wire))
	require.NoError(t, err)
	return e
}

func complicated() ir.IRObject {
	return ir.IRObject{
		"name":    ir.IRString("Frank"),
		"parents": ir.IRArray{ir.IRString("John"), ir.IRString("Jane")},
		"address": ir.IRObject{
			"street": ir.IRString("123 Main St"),
			"city":   ir.IRString("San Francisco"),
		},
		"age": ir.IRNumber(42),
	}
}

func TestEvaluate(t *testing.T) {
	ev := New(Builtins())
	root := complicated()

	tests := []struct {
		name string
		expr string
		want ir.IRValue
	}{
		{"string literal", `["string","x"]`, ir.IRString("x")},
		{"null literal", `["null"]`, ir.IRNull{}},
		{"array literal", `["array",[["number",1],["attr","name"]]]`, ir.IRArray{ir.IRNumber(1), ir.IRString("Frank")}},
		{"array literal with absent", `["array",[["attr","missing"]]]`, ir.IRArray{ir.IRNull{}}},
		{"attr", `["attr","name"]`, ir.IRString("Frank")},
		{"attr missing", `["attr","missing"]`, nil},
		{"attr on base", `["attr",["attr","address"],"city"]`, ir.IRString("San Francisco")},
		{"attr on scalar", `["attr",["attr","name"],"length"]`, nil},
		{"attr identity", `["attr",""]`, root},
		{"eq scalar", `["=",["attr","name"],["string","Frank"]]`, ir.IRBool(true)},
		{"eq membership", `["=",["attr","parents"],["string","John"]]`, ir.IRBool(true)},
		{"eq membership miss", `["=",["attr","parents"],["string","Frank"]]`, ir.IRBool(false)},
		{"eq deep", `["=",["attr","address"],["attr","address"]]`, ir.IRBool(true)},
		{"eq absent", `["=",["attr","missing"],["string","x"]]`, ir.IRBool(false)},
		{"neq", `["!=",["attr","name"],["string","Frank"]]`, ir.IRBool(false)},
		{"match", `["=~",["attr","name"],["regexp","^fr","i"]]`, ir.IRBool(true)},
		{"match case sensitive", `["=~",["attr","name"],["regexp","^fr",""]]`, ir.IRBool(false)},
		{"match non-string", `["=~",["attr","address"],["regexp",".*",""]]`, ir.IRBool(false)},
		{"not match", `["!=~",["attr","name"],["regexp","^x",""]]`, ir.IRBool(true)},
		{"in", `["in",["string","Jane"],["attr","parents"]]`, ir.IRBool(true)},
		{"and", `["and",["boolean",true],["=",["attr","age"],["number",42]]]`, ir.IRBool(true)},
		{"or", `["or",["boolean",false],["boolean",true]]`, ir.IRBool(true)},
		{"less", `["<",["attr","age"],["number",50]]`, ir.IRBool(true)},
		{"greater eq strings", `[">=",["string","b"],["string","a"]]`, ir.IRBool(true)},
		{"concat", `["+",["attr","name"],["string","!"]]`, ir.IRString("Frank!")},
		{"sum", `["+",["attr","age"],["number",0.5]]`, ir.IRNumber(42.5)},
		{"sub", `["-",["attr","age"],["number",2]]`, ir.IRNumber(40)},
		{"mul", `["*",["number",3],["number",4]]`, ir.IRNumber(12)},
		{"div", `["/",["number",3],["number",4]]`, ir.IRNumber(0.75)},
		{"mod", `["%",["number",7],["number",4]]`, ir.IRNumber(3)},
		{"count", `["call","count",[["attr","parents"]]]`, ir.IRNumber(2)},
		{"max", `["call","max",[["number",1],["number",9],["number",3]]]`, ir.IRNumber(9)},
		{"min of list", `["call","min",[["array",[["number",4],["number",2]]]]]`, ir.IRNumber(2)},
		{"upper", `["call","upper",[["attr","name"]]]`, ir.IRString("FRANK")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), mustExpr(t, tt.expr), root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			gotSync, err := ev.EvaluateSync(mustExpr(t, tt.expr), root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gotSync)
		})
	}
}

func TestEvaluateScalarRoot(t *testing.T) {
	ev := New(nil)

	ok, err := ev.EvaluateBoolSync(mustExpr(t, `["=~",["attr",""],["regexp","Z.f","i"]]`), ir.IRString("Zef"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.EvaluateBoolSync(mustExpr(t, `["=~",["attr",""],["regexp","Z.f","i"]]`), ir.IRBytes{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateErrors(t *testing.T) {
	ev := New(Builtins())
	root := complicated()

	tests := []struct {
		name  string
		expr  string
		check func(error) bool
	}{
		{"unknown function", `["call","nope",[]]`, IsUnknownFunction},
		{"concat mismatch", `["+",["attr","name"],["number",1]]`, IsTypeMismatch},
		{"sum absent", `["+",["attr","age"],["attr","missing"]]`, IsTypeMismatch},
		{"compare mixed", `["<",["attr","age"],["string","x"]]`, IsTypeMismatch},
		{"in non-list", `["in",["string","x"],["attr","name"]]`, IsTypeMismatch},
		{"division by zero", `["/",["number",1],["number",0]]`, IsTypeMismatch},
		{"and non-boolean", `["and",["boolean",true],["attr","name"]]`, IsNonBoolean},
		{"match without regexp", `["=~",["attr","name"],["string","Frank"]]`, IsInvalidRegexp},
		{"bad pattern", `["=~",["attr","name"],["regexp","(",""]]`, IsInvalidRegexp},
		{"bad flag", `["=~",["attr","name"],["regexp","a","x"]]`, IsInvalidRegexp},
		{"bare regexp", `["regexp","a",""]`, IsInvalidRegexp},
		{"count non-list", `["call","count",[["attr","name"]]]`, IsTypeMismatch},
		{"no query hook", `["query",{}]`, IsUnknownFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ev.Evaluate(context.Background(), mustExpr(t, tt.expr), root)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.True(t, IsEvalError(err))
		})
	}
}

func TestEvaluateBoolRequiresBoolean(t *testing.T) {
	ev := New(nil)
	_, err := ev.EvaluateBool(context.Background(), mustExpr(t, `["attr","name"]`), ir.IRObject{"name": ir.IRString("x")})
	require.Error(t, err)
	assert.True(t, IsNonBoolean(err))
}

func TestEvaluateAsyncCall(t *testing.T) {
	var gotArgs []ir.IRValue
	funcs := Functions{
		"fetch": AsyncFunc(func(ctx context.Context, args []ir.IRValue) (ir.IRValue, error) {
			gotArgs = args
			return ir.IRString("fetched"), nil
		}),
	}
	ev := New(funcs)

	got, err := ev.Evaluate(context.Background(), mustExpr(t, `["call","fetch",[["number",1],["attr","x"]]]`), ir.IRObject{"x": ir.IRBool(true)})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("fetched"), got)
	assert.Equal(t, []ir.IRValue{ir.IRNumber(1), ir.IRBool(true)}, gotArgs)
}

func TestEvaluateSyncRejectsSuspension(t *testing.T) {
	called := false
	funcs := Functions{
		QueryFunctionName: AsyncFunc(func(ctx context.Context, args []ir.IRValue) (ir.IRValue, error) {
			called = true
			return ir.IRArray{}, nil
		}),
	}
	ev := New(funcs)

	for _, wire := range []string{
		`["call","$query",[]]`,
		`["query",{"querySource":"bla"}]`,
		`["and",["boolean",true],["call","$query",[]]]`,
	} {
		t.Run(wire, func(t *testing.T) {
			_, err := ev.EvaluateSync(mustExpr(t, wire), ir.IRObject{})
			require.Error(t, err)
			assert.True(t, IsSynchronyViolation(err), "unexpected error: %v", err)
		})
	}
	assert.False(t, called, "async function must not run during synchronous evaluation")
}

func TestEvaluateQueryNode(t *testing.T) {
	var gotSpec ir.IRValue
	funcs := Functions{
		QueryFunctionName: AsyncFunc(func(ctx context.Context, args []ir.IRValue) (ir.IRValue, error) {
			require.Len(t, args, 1)
			gotSpec = args[0]
			return ir.IRArray{}, nil
		}),
	}
	ev := New(funcs)

	got, err := ev.Evaluate(context.Background(), mustExpr(t, `["query",{"querySource":"bla"}]`), ir.IRObject{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{}, got)
	assert.Equal(t, ir.IRObject{"querySource": ir.IRString("bla")}, gotSpec)
}

func TestEvaluateCanceledContext(t *testing.T) {
	funcs := Functions{
		"slow": AsyncFunc(func(ctx context.Context, args []ir.IRValue) (ir.IRValue, error) {
			return ir.IRNull{}, nil
		}),
	}
	ev := New(funcs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.Evaluate(ctx, mustExpr(t, `["call","slow",[]]`), ir.IRObject{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEvaluateWrapsFunctionErrors(t *testing.T) {
	boom := errors.New("boom")
	ev := New(Functions{
		"fail": SyncFunc(func(args []ir.IRValue) (ir.IRValue, error) { return nil, boom }),
	})

	_, err := ev.EvaluateSync(mustExpr(t, `["call","fail",[]]`), ir.IRObject{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `call "fail"`)
}

func TestNewCopiesRegistry(t *testing.T) {
	funcs := Builtins()
	ev := New(funcs)
	delete(funcs, "count")

	_, err := ev.EvaluateSync(mustExpr(t, `["call","count",[["array",[]]]]`), ir.IRObject{})
	require.NoError(t, err)
}
