package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"unsafe"

	"github.com/roach88/docstore/internal/eval"
	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
)

// DataStore is a document store over a kv.Primitive.
//
// Thread-safety model:
//   - Get/Set/BatchSet/Delete/Query: as safe as the underlying primitive
//   - EnrichObject/CleanEnrichedObject: the provenance table is locked, but
//     an object must not be enriched from two goroutines at once
//   - ObjectEnrichers: mutate only while no enrichment is running
type DataStore struct {
	kv        kv.Primitive
	evaluator *eval.Evaluator
	logger    *slog.Logger
	ids       IDGenerator

	maxSubQueries int

	// ObjectEnrichers are applied by EnrichObject in list order.
	ObjectEnrichers []ir.ObjectEnricher

	mu         sync.Mutex
	provenance map[unsafe.Pointer]*Provenance
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ds *DataStore) {
		ds.logger = logger
	}
}

// WithEnrichers sets the initial ObjectEnrichers.
func WithEnrichers(enrichers ...ir.ObjectEnricher) Option {
	return func(ds *DataStore) {
		ds.ObjectEnrichers = append([]ir.ObjectEnricher(nil), enrichers...)
	}
}

// WithIDGenerator sets the generator Insert uses for new key segments.
// Default: UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(ds *DataStore) {
		ds.ids = gen
	}
}

// New creates a DataStore over primitive.
//
// funcs is the function registry for expressions. If it has no entry under
// eval.QueryFunctionName, a default sub-query hook is registered: it decodes
// the opaque spec with ir.ParseQuerySpec, runs it against this store, and
// returns the list of result values.
func New(primitive kv.Primitive, funcs eval.Functions, opts ...Option) *DataStore {
	ds := &DataStore{
		kv:         primitive,
		logger:     slog.Default(),
		ids:        UUIDv7Generator{},
		provenance: make(map[unsafe.Pointer]*Provenance),
	}
	for _, opt := range opts {
		opt(ds)
	}

	registry := funcs.Clone()
	if _, ok := registry[eval.QueryFunctionName]; !ok {
		registry[eval.QueryFunctionName] = eval.AsyncFunc(ds.subQuery)
	}
	ds.evaluator = eval.New(registry)
	return ds
}

// subQuery is the default sub-query hook.
func (ds *DataStore) subQuery(ctx context.Context, args []ir.IRValue) (ir.IRValue, error) {
	if err := chargeSubQuery(ctx); err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("sub-query: expected 1 argument, got %d", len(args))
	}
	spec, err := ir.ParseQuerySpec(args[0])
	if err != nil {
		return nil, fmt.Errorf("sub-query: %w", err)
	}
	entries, err := ds.Query(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("sub-query: %w", err)
	}
	values := make(ir.IRArray, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values, nil
}

// Evaluator returns the evaluator used for queries and enrichment.
func (ds *DataStore) Evaluator() *eval.Evaluator {
	return ds.evaluator
}

// Get returns the value at key, or nil if none is stored.
func (ds *DataStore) Get(ctx context.Context, key ir.Key) (ir.IRValue, error) {
	return ds.kv.Get(ctx, key)
}

// Set stores value at key.
func (ds *DataStore) Set(ctx context.Context, key ir.Key, value ir.IRValue) error {
	if err := ds.kv.Set(ctx, key, value); err != nil {
		return err
	}
	ds.logger.Debug("entry set", "key", key.String())
	return nil
}

// BatchSet stores every entry. Atomicity is that of the primitive.
func (ds *DataStore) BatchSet(ctx context.Context, entries []ir.Entry) error {
	if err := ds.kv.BatchSet(ctx, entries); err != nil {
		return err
	}
	ds.logger.Debug("entries set", "count", len(entries))
	return nil
}

// Insert stores value under prefix plus a freshly generated segment and
// returns the full key.
func (ds *DataStore) Insert(ctx context.Context, prefix ir.Key, value ir.IRValue) (ir.Key, error) {
	key := prefix.Concat(ir.Key{ds.ids.Generate()})
	if err := ds.Set(ctx, key, value); err != nil {
		return nil, err
	}
	return key, nil
}

// Delete removes key.
func (ds *DataStore) Delete(ctx context.Context, key ir.Key) error {
	if err := ds.kv.Delete(ctx, key); err != nil {
		return err
	}
	ds.logger.Debug("entry deleted", "key", key.String())
	return nil
}

// BatchDelete removes every key.
func (ds *DataStore) BatchDelete(ctx context.Context, keys []ir.Key) error {
	if err := ds.kv.BatchDelete(ctx, keys); err != nil {
		return err
	}
	ds.logger.Debug("entries deleted", "count", len(keys))
	return nil
}

// objectID identifies a map by its runtime header, so provenance survives
// the object being passed around by value.
func objectID(obj ir.IRObject) unsafe.Pointer {
	return reflect.ValueOf(obj).UnsafePointer()
}
