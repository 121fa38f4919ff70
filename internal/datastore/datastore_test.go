package datastore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docstore/internal/eval"
	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
	"github.com/roach88/docstore/internal/kv/memory"
	"github.com/roach88/docstore/internal/kv/sqlite"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testFunctions is the registry the behavioral tests run with: count plus a
// sub-query hook that always resolves to an empty list.
func testFunctions() eval.Functions {
	return eval.Functions{
		"count": eval.Builtins()["count"],
		eval.QueryFunctionName: eval.AsyncFunc(func(ctx context.Context, args []ir.IRValue) (ir.IRValue, error) {
			return ir.IRArray{}, nil
		}),
	}
}

type backend struct {
	name string
	open func(t *testing.T) kv.Primitive
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) kv.Primitive { return memory.New() }},
		{"sqlite", func(t *testing.T) kv.Primitive {
			s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			return s
		}},
	}
}

func newTestStore(t *testing.T, db kv.Primitive, opts ...Option) *DataStore {
	t.Helper()
	p := kv.NewPrefixed(db, ir.Key{"ds"})
	require.NoError(t, p.Init(context.Background()))
	t.Cleanup(func() { p.Close() })
	return New(p, testFunctions(), append([]Option{WithLogger(quietLogger)}, opts...)...)
}

func mustQuery(t *testing.T, wire string) ir.QuerySpec {
	t.Helper()
	v, err := ir.DecodeValue([]byte(wire))
	require.NoError(t, err)
	spec, err := ir.ParseQuerySpec(v)
	require.NoError(t, err)
	return spec
}

func mustEnrichers(t *testing.T, wires ...string) []ir.ObjectEnricher {
	t.Helper()
	out := make([]ir.ObjectEnricher, len(wires))
	for i, wire := range wires {
		var err error
		out[i], err = ir.ParseObjectEnricherJSON([]byte(wire))
		require.NoError(t, err)
	}
	return out
}

func TestDataStore(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			runDataStoreScenario(t, newTestStore(t, b.open(t)))
		})
	}
}

func runDataStoreScenario(t *testing.T, ds *DataStore) {
	ctx := context.Background()

	require.NoError(t, ds.Set(ctx, ir.Key{"user", "peter"}, ir.IRObject{"name": ir.IRString("Peter")}))
	require.NoError(t, ds.Set(ctx, ir.Key{"user", "hank"}, ir.IRObject{"name": ir.IRString("Hank")}))

	peter := ir.Entry{Key: ir.Key{"user", "peter"}, Value: ir.IRObject{"name": ir.IRString("Peter")}}
	hank := ir.Entry{Key: ir.Key{"user", "hank"}, Value: ir.IRObject{"name": ir.IRString("Hank")}}

	results, err := ds.Query(ctx, mustQuery(t, `{"prefix":["user"],"filter":["=",["attr","name"],["string","Peter"]]}`))
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{peter}, results)

	results, err = ds.Query(ctx, mustQuery(t, `{"prefix":["user"],"orderBy":[{"expr":["attr","name"],"desc":false}]}`))
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{hank, peter}, results)

	results, err = ds.Query(ctx, mustQuery(t, `{"prefix":["user"],"orderBy":[{"expr":["attr","name"],"desc":true}]}`))
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{peter, hank}, results)

	require.NoError(t, ds.BatchSet(ctx, []ir.Entry{
		{Key: ir.Key{"kv", "name"}, Value: ir.IRString("Zef")},
		{Key: ir.Key{"kv", "data"}, Value: ir.IRBytes{1, 2, 3}},
		{Key: ir.Key{"kv", "complicated"}, Value: ir.IRObject{
			"name":    ir.IRString("Frank"),
			"parents": ir.IRArray{ir.IRString("John"), ir.IRString("Jane")},
			"address": ir.IRObject{
				"street": ir.IRString("123 Main St"),
				"city":   ir.IRString("San Francisco"),
			},
		}},
	}))

	v, err := ds.Get(ctx, ir.Key{"kv", "name"})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Zef"), v)

	v, err = ds.Get(ctx, ir.Key{"kv", "data"})
	require.NoError(t, err)
	assert.Equal(t, ir.IRBytes{1, 2, 3}, v)

	results, err = ds.Query(ctx, mustQuery(t, `{"prefix":["kv"],"filter":["=~",["attr",""],["regexp","Z.f","i"]]}`))
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{{Key: ir.Key{"kv", "name"}, Value: ir.IRString("Zef")}}, results)

	results, err = ds.Query(ctx, mustQuery(t, `{
		"prefix": ["kv"],
		"filter": ["and",
			["=", ["attr", "parents"], ["string", "John"]],
			["=", ["attr", ["attr", "address"], "city"], ["string", "San Francisco"]]],
		"select": [
			{"name": "parents"},
			{"name": "name", "expr": ["+", ["attr", "name"], ["string", "!"]]},
			{"name": "parentCount", "expr": ["call", "count", [["attr", "parents"]]]}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ir.Entry{
		Key: ir.Key{"kv", "complicated"},
		Value: ir.IRObject{
			"name":        ir.IRString("Frank!"),
			"parentCount": ir.IRNumber(2),
			"parents":     ir.IRArray{ir.IRString("John"), ir.IRString("Jane")},
		},
	}, results[0])

	results, err = ds.Query(ctx, mustQuery(t, `{
		"prefix": ["kv"],
		"limit": ["number", 1],
		"select": [{"name": "random", "expr": ["query", {"querySource": "bla"}]}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{{Key: ir.Key{"kv", "complicated"}, Value: ir.IRObject{"random": ir.IRArray{}}}}, results)

	ds.ObjectEnrichers = personEnrichers(t)

	obj := ir.IRObject{
		"firstName":            ir.IRString("Pete"),
		"lastName":             ir.IRString("Smith"),
		"existingObjAttribute": ir.IRObject{"something": ir.IRBool(true)},
		"tags":                 ir.IRArray{ir.IRString("person")},
	}
	pristine := ir.Clone(obj)

	require.NoError(t, ds.EnrichObject(obj))
	assert.Equal(t, ir.IRString("Pete Smith"), obj["fullName"])
	assert.Equal(t, ir.IRString("Smith"), obj["lastName"])
	assert.Equal(t, ir.IRObject{
		"prefix": ir.IRObject{"bla": ir.IRObject{"doh": ir.IRString("🧑 Pete Smith")}},
	}, obj["pageDecoration"])
	assert.Equal(t, ir.IRBool(true), obj["existingObjAttribute"].(ir.IRObject)["something"])
	assert.Equal(t, ir.IRString("value"), obj["existingObjAttribute"].(ir.IRObject)["another"])
	assert.Equal(t, ir.IRArray{ir.IRString("newValue1"), ir.IRString("newValue2")}, obj["listAttribute"])
	assert.Equal(t, ir.IRArray{ir.IRString("newValue1"), ir.IRString("newValue2")}, obj["nested"].(ir.IRObject)["listAttribute"])

	ds.CleanEnrichedObject(obj)
	assert.True(t, ir.Equal(pristine, obj), "cleaned object differs from pristine: %#v", obj)

	ds.ObjectEnrichers = mustEnrichers(t, `{"where":["call","$query",[]],"attributes":{}}`)
	err = ds.EnrichObject(ir.IRObject{})
	require.Error(t, err)
	assert.True(t, eval.IsSynchronyViolation(err), "unexpected error: %v", err)
}

func personEnrichers(t *testing.T) []ir.ObjectEnricher {
	return mustEnrichers(t,
		`{"where":["=",["attr","tags"],["string","person"]],
		  "attributes":{"fullName":["+",["+",["attr","firstName"],["string"," "]],["attr","lastName"]]}}`,
		`{"where":["=",["attr","tags"],["string","person"]],
		  "attributes":{"pageDecoration.prefix.bla.doh":["+",["string","🧑 "],["attr","fullName"]]}}`,
		`{"where":["boolean",true],
		  "attributes":{"listAttribute":["array",[["string","newValue1"]]],
		                "nested.listAttribute":["array",[["string","newValue1"]]]}}`,
		`{"where":["boolean",true],
		  "attributes":{"listAttribute":["array",[["string","newValue2"]]],
		                "nested.listAttribute":["array",[["string","newValue2"]]]}}`,
		`{"where":["boolean",true],
		  "attributes":{"lastName":["string","Shouldn't be set"]}}`,
		`{"where":["=",["attr","tags"],["string","person"]],
		  "attributes":{"existingObjAttribute.another":["string","value"]}}`,
	)
}

func TestInsertUsesIDGenerator(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t, memory.New(), WithIDGenerator(NewFixedGenerator("id-1", "id-2")))

	k1, err := ds.Insert(ctx, ir.Key{"notes"}, ir.IRString("first"))
	require.NoError(t, err)
	k2, err := ds.Insert(ctx, ir.Key{"notes"}, ir.IRString("second"))
	require.NoError(t, err)

	assert.Equal(t, ir.Key{"notes", "id-1"}, k1)
	assert.Equal(t, ir.Key{"notes", "id-2"}, k2)

	v, err := ds.Get(ctx, k2)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("second"), v)
}

func TestUUIDv7KeysSortByCreation(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.Less(t, a, b)
}

func TestDeleteAndBatchDelete(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t, memory.New())

	require.NoError(t, ds.BatchSet(ctx, []ir.Entry{
		{Key: ir.Key{"a"}, Value: ir.IRNumber(1)},
		{Key: ir.Key{"b"}, Value: ir.IRNumber(2)},
		{Key: ir.Key{"c"}, Value: ir.IRNumber(3)},
	}))
	require.NoError(t, ds.Delete(ctx, ir.Key{"a"}))
	require.NoError(t, ds.BatchDelete(ctx, []ir.Key{{"b"}}))

	results, err := ds.Query(ctx, ir.QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{{Key: ir.Key{"c"}, Value: ir.IRNumber(3)}}, results)
}

func TestStorageErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	ds := New(db, nil, WithLogger(quietLogger))
	require.NoError(t, db.Close())

	_, err := ds.Query(ctx, ir.QuerySpec{Prefix: ir.Key{"x"}})
	assert.ErrorIs(t, err, kv.ErrClosed)
	assert.ErrorIs(t, ds.Set(ctx, ir.Key{"x"}, ir.IRNull{}), kv.ErrClosed)
}
