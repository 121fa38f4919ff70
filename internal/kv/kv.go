package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/docstore/internal/ir"
)

var (
	// ErrEmptyKey is returned for a key with no segments.
	ErrEmptyKey = errors.New("kv: empty key")

	// ErrAbsentValue is returned when asked to store the absent value.
	ErrAbsentValue = errors.New("kv: cannot store absent value")

	// ErrClosed is returned by operations on a closed primitive.
	ErrClosed = errors.New("kv: primitive is closed")

	// ErrForeignKey is returned by a namespaced view when the backend yields
	// a key outside the view's prefix.
	ErrForeignKey = errors.New("kv: key outside namespace")
)

// Primitive is an ordered key-value store over compound keys.
//
// Implementations must return Query results sorted by key and must not
// retain or hand out memory shared with callers' values.
type Primitive interface {
	// Init prepares the backend (creating tables, verifying connectivity).
	Init(ctx context.Context) error

	// Get returns the value at key, or nil if the key is not set.
	Get(ctx context.Context, key ir.Key) (ir.IRValue, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key ir.Key, value ir.IRValue) error

	// BatchSet stores every entry. Atomicity is backend-specific.
	BatchSet(ctx context.Context, entries []ir.Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key ir.Key) error

	// BatchDelete removes every key.
	BatchDelete(ctx context.Context, keys []ir.Key) error

	// Query returns every entry whose key has prefix, in key order.
	// The empty prefix matches every entry.
	Query(ctx context.Context, prefix ir.Key) ([]ir.Entry, error)

	// Close releases the backend's resources.
	Close() error
}

// ValidateKey checks that key can be stored.
func ValidateKey(key ir.Key) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}

// ValidateEntry checks that an entry can be stored.
func ValidateEntry(e ir.Entry) error {
	if err := ValidateKey(e.Key); err != nil {
		return err
	}
	if e.Value == nil {
		return fmt.Errorf("key %s: %w", e.Key, ErrAbsentValue)
	}
	return nil
}
