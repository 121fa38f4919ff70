package kv

import (
	"context"
	"fmt"

	"github.com/roach88/docstore/internal/ir"
)

// Prefixed is a namespaced view over another Primitive. Every key sent
// downstream gets the prefix prepended; every key returned upward has it
// stripped. Callers of the view never see the prefix.
//
// Init and Close are forwarded to the wrapped primitive.
type Prefixed struct {
	inner  Primitive
	prefix ir.Key
}

var _ Primitive = (*Prefixed)(nil)

// NewPrefixed creates a view of inner under prefix. The prefix is copied.
func NewPrefixed(inner Primitive, prefix ir.Key) *Prefixed {
	return &Prefixed{
		inner:  inner,
		prefix: append(ir.Key(nil), prefix...),
	}
}

// Prefix returns a copy of the view's prefix.
func (p *Prefixed) Prefix() ir.Key {
	return append(ir.Key(nil), p.prefix...)
}

func (p *Prefixed) Init(ctx context.Context) error {
	return p.inner.Init(ctx)
}

func (p *Prefixed) Get(ctx context.Context, key ir.Key) (ir.IRValue, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return p.inner.Get(ctx, p.prefix.Concat(key))
}

func (p *Prefixed) Set(ctx context.Context, key ir.Key, value ir.IRValue) error {
	if err := ValidateEntry(ir.Entry{Key: key, Value: value}); err != nil {
		return err
	}
	return p.inner.Set(ctx, p.prefix.Concat(key), value)
}

func (p *Prefixed) BatchSet(ctx context.Context, entries []ir.Entry) error {
	wrapped := make([]ir.Entry, len(entries))
	for i, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return err
		}
		wrapped[i] = ir.Entry{Key: p.prefix.Concat(e.Key), Value: e.Value}
	}
	return p.inner.BatchSet(ctx, wrapped)
}

func (p *Prefixed) Delete(ctx context.Context, key ir.Key) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return p.inner.Delete(ctx, p.prefix.Concat(key))
}

func (p *Prefixed) BatchDelete(ctx context.Context, keys []ir.Key) error {
	wrapped := make([]ir.Key, len(keys))
	for i, k := range keys {
		if err := ValidateKey(k); err != nil {
			return err
		}
		wrapped[i] = p.prefix.Concat(k)
	}
	return p.inner.BatchDelete(ctx, wrapped)
}

func (p *Prefixed) Query(ctx context.Context, prefix ir.Key) ([]ir.Entry, error) {
	entries, err := p.inner.Query(ctx, p.prefix.Concat(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]ir.Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Key.HasPrefix(p.prefix) {
			return nil, fmt.Errorf("%w: %s (namespace %s)", ErrForeignKey, e.Key, p.prefix)
		}
		// The namespace root itself lies outside the view's key space.
		if len(e.Key) == len(p.prefix) {
			continue
		}
		out = append(out, ir.Entry{Key: append(ir.Key(nil), e.Key[len(p.prefix):]...), Value: e.Value})
	}
	return out, nil
}

func (p *Prefixed) Close() error {
	return p.inner.Close()
}
