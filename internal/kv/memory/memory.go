// Package memory implements kv.Primitive as an in-process ordered map.
//
// Entries live in a github.com/google/btree B-tree ordered by encoded key.
// Values are deep-copied on the way in and on the way out, so callers may
// mutate what they pass or receive.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
)

// degree is the B-tree branching factor.
const degree = 32

type item struct {
	enc   []byte
	key   ir.Key
	value ir.IRValue
}

func less(a, b item) bool {
	return bytes.Compare(a.enc, b.enc) < 0
}

// Store is an in-memory kv.Primitive. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[item]
	closed bool
}

var _ kv.Primitive = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{tree: btree.NewG(degree, less)}
}

// Init is a no-op; the store is ready after New.
func (s *Store) Init(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.ErrClosed
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key ir.Key) (ir.IRValue, error) {
	if err := kv.ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrClosed
	}
	found, ok := s.tree.Get(item{enc: ir.EncodeKey(key)})
	if !ok {
		return nil, nil
	}
	return ir.Clone(found.value), nil
}

func (s *Store) Set(ctx context.Context, key ir.Key, value ir.IRValue) error {
	return s.BatchSet(ctx, []ir.Entry{{Key: key, Value: value}})
}

// BatchSet applies every entry under one lock; readers never observe a
// partial batch.
func (s *Store) BatchSet(ctx context.Context, entries []ir.Entry) error {
	items := make([]item, len(entries))
	for i, e := range entries {
		if err := kv.ValidateEntry(e); err != nil {
			return err
		}
		items[i] = item{
			enc:   ir.EncodeKey(e.Key),
			key:   append(ir.Key(nil), e.Key...),
			value: ir.Clone(e.Value),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	for _, it := range items {
		s.tree.ReplaceOrInsert(it)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key ir.Key) error {
	return s.BatchDelete(ctx, []ir.Key{key})
}

func (s *Store) BatchDelete(ctx context.Context, keys []ir.Key) error {
	for _, k := range keys {
		if err := kv.ValidateKey(k); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	for _, k := range keys {
		s.tree.Delete(item{enc: ir.EncodeKey(k)})
	}
	return nil
}

func (s *Store) Query(ctx context.Context, prefix ir.Key) ([]ir.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrClosed
	}

	entries := []ir.Entry{}
	collect := func(it item) bool {
		entries = append(entries, ir.Entry{
			Key:   append(ir.Key(nil), it.key...),
			Value: ir.Clone(it.value),
		})
		return true
	}

	lower := item{enc: ir.EncodeKey(prefix)}
	if upper := ir.PrefixUpperBound(prefix); upper != nil {
		s.tree.AscendRange(lower, item{enc: upper}, collect)
	} else {
		s.tree.AscendGreaterOrEqual(lower, collect)
	}
	return entries, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Close releases the tree. Further operations return kv.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tree.Clear(false)
	return nil
}
