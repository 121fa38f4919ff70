// Package testutil provides shared test helpers for kv backends and the
// data store.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
)

// PrimitiveFactory creates a fresh, empty, initialized primitive.
// The factory is responsible for registering cleanup with t.
type PrimitiveFactory func(t *testing.T) kv.Primitive

// RunPrimitiveSuite runs the behavioral contract every kv.Primitive must
// satisfy. Backend packages call it from their own tests:
//
//	func TestConformance(t *testing.T) {
//		testutil.RunPrimitiveSuite(t, func(t *testing.T) kv.Primitive { ... })
//	}
func RunPrimitiveSuite(t *testing.T, newPrimitive PrimitiveFactory) {
	t.Run("GetMissing", func(t *testing.T) {
		p := newPrimitive(t)
		v, err := p.Get(context.Background(), ir.Key{"nope"})
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("SetGetAllKinds", func(t *testing.T) {
		p := newPrimitive(t)
		ctx := context.Background()
		values := map[string]ir.IRValue{
			"null":    ir.IRNull{},
			"bool":    ir.IRBool(true),
			"number":  ir.IRNumber(-3.5),
			"string":  ir.IRString("Zef"),
			"bytes":   ir.IRBytes{1, 2, 3},
			"list":    ir.IRArray{ir.IRString("John"), ir.IRString("Jane")},
			"object":  ir.IRObject{"address": ir.IRObject{"city": ir.IRString("San Francisco")}},
			"empties": ir.IRObject{"list": ir.IRArray{}, "obj": ir.IRObject{}},
		}
		for name, v := range values {
			require.NoError(t, p.Set(ctx, ir.Key{"kv", name}, v))
		}
		for name, want := range values {
			got, err := p.Get(ctx, ir.Key{"kv", name})
			require.NoError(t, err)
			assert.True(t, ir.Equal(want, got), "%s: got %#v", name, got)
		}
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		p := newPrimitive(t)
		ctx := context.Background()
		require.NoError(t, p.Set(ctx, ir.Key{"a"}, ir.IRNumber(1)))
		require.NoError(t, p.Set(ctx, ir.Key{"a"}, ir.IRNumber(2)))

		got, err := p.Get(ctx, ir.Key{"a"})
		require.NoError(t, err)
		assert.Equal(t, ir.IRNumber(2), got)
	})

	t.Run("ValuesAreNotAliased", func(t *testing.T) {
		p := newPrimitive(t)
		ctx := context.Background()
		obj := ir.IRObject{"name": ir.IRString("Peter")}
		require.NoError(t, p.Set(ctx, ir.Key{"user", "peter"}, obj))
		obj["name"] = ir.IRString("changed")

		got, err := p.Get(ctx, ir.Key{"user", "peter"})
		require.NoError(t, err)
		assert.Equal(t, ir.IRObject{"name": ir.IRString("Peter")}, got)

		got.(ir.IRObject)["name"] = ir.IRString("changed again")
		again, err := p.Get(ctx, ir.Key{"user", "peter"})
		require.NoError(t, err)
		assert.Equal(t, ir.IRObject{"name": ir.IRString("Peter")}, again)
	})

	t.Run("QueryPrefixInKeyOrder", func(t *testing.T) {
		p := newPrimitive(t)
		ctx := context.Background()
		require.NoError(t, p.BatchSet(ctx, []ir.Entry{
			{Key: ir.Key{"user", "peter"}, Value: ir.IRObject{"name": ir.IRString("Peter")}},
			{Key: ir.Key{"user", "hank"}, Value: ir.IRObject{"name": ir.IRString("Hank")}},
			{Key: ir.Key{"users", "x"}, Value: ir.IRNumber(1)},
			{Key: ir.Key{"user"}, Value: ir.IRNumber(0)},
			{Key: ir.Key{"user", "hank", "pet"}, Value: ir.IRString("dog")},
			{Key: ir.Key{"kv", "name"}, Value: ir.IRString("Zef")},
		}))

		entries, err := p.Query(ctx, ir.Key{"user"})
		require.NoError(t, err)
		assert.Equal(t, []ir.Key{
			{"user"},
			{"user", "hank"},
			{"user", "hank", "pet"},
			{"user", "peter"},
		}, keysOf(entries))

		all, err := p.Query(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []ir.Key{
			{"kv", "name"},
			{"user"},
			{"user", "hank"},
			{"user", "hank", "pet"},
			{"user", "peter"},
			{"users", "x"},
		}, keysOf(all))

		none, err := p.Query(ctx, ir.Key{"nothing"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("QueryKeysWithNulBytes", func(t *testing.T) {
		p := newPrimitive(t)
		ctx := context.Background()
		require.NoError(t, p.BatchSet(ctx, []ir.Entry{
			{Key: ir.Key{"a\x00b", "c"}, Value: ir.IRNumber(1)},
			{Key: ir.Key{"a", "b"}, Value: ir.IRNumber(2)},
		}))

		entries, err := p.Query(ctx, ir.Key{"a"})
		require.NoError(t, err)
		assert.Equal(t, []ir.Key{{"a", "b"}}, keysOf(entries))

		entries, err = p.Query(ctx, ir.Key{"a\x00b"})
		require.NoError(t, err)
		assert.Equal(t, []ir.Key{{"a\x00b", "c"}}, keysOf(entries))
	})

	t.Run("DeleteAndBatchDelete", func(t *testing.T) {
		p := newPrimitive(t)
		ctx := context.Background()
		require.NoError(t, p.BatchSet(ctx, []ir.Entry{
			{Key: ir.Key{"k", "1"}, Value: ir.IRNumber(1)},
			{Key: ir.Key{"k", "2"}, Value: ir.IRNumber(2)},
			{Key: ir.Key{"k", "3"}, Value: ir.IRNumber(3)},
		}))

		require.NoError(t, p.Delete(ctx, ir.Key{"k", "1"}))
		require.NoError(t, p.Delete(ctx, ir.Key{"k", "missing"}))
		require.NoError(t, p.BatchDelete(ctx, []ir.Key{{"k", "3"}}))

		entries, err := p.Query(ctx, ir.Key{"k"})
		require.NoError(t, err)
		assert.Equal(t, []ir.Key{{"k", "2"}}, keysOf(entries))
	})

	t.Run("RejectsInvalidInput", func(t *testing.T) {
		p := newPrimitive(t)
		ctx := context.Background()
		assert.ErrorIs(t, p.Set(ctx, ir.Key{}, ir.IRNumber(1)), kv.ErrEmptyKey)
		assert.ErrorIs(t, p.Set(ctx, ir.Key{"a"}, nil), kv.ErrAbsentValue)
		_, err := p.Get(ctx, nil)
		assert.ErrorIs(t, err, kv.ErrEmptyKey)
		assert.ErrorIs(t, p.BatchSet(ctx, []ir.Entry{{Key: ir.Key{"ok"}, Value: ir.IRNull{}}, {Key: nil, Value: ir.IRNull{}}}), kv.ErrEmptyKey)

		// A rejected batch writes nothing.
		v, err := p.Get(ctx, ir.Key{"ok"})
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func keysOf(entries []ir.Entry) []ir.Key {
	keys := make([]ir.Key, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// SeedEntries writes entries to p, failing the test on error.
func SeedEntries(t *testing.T, p kv.Primitive, entries ...ir.Entry) {
	t.Helper()
	require.NoError(t, p.BatchSet(context.Background(), entries))
}
