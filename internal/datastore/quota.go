package datastore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// subQueryQuota counts the sub-queries run on behalf of one top-level
// Query and enforces a maximum.
//
// A filter that calls $query runs one sub-query per scanned entry, and
// sub-queries may nest. The quota bounds the total across all levels.
type subQueryQuota struct {
	max     int64
	current atomic.Int64
}

// check increments the counter and validates it against the limit.
func (q *subQueryQuota) check() error {
	n := q.current.Add(1)
	if n > q.max {
		return &QuotaExceededError{Limit: int(q.max)}
	}
	return nil
}

type quotaKey struct{}

// withQuota attaches a fresh quota to ctx unless one is already there, so
// nested queries share the quota of the outermost one.
func (ds *DataStore) withQuota(ctx context.Context) context.Context {
	if ds.maxSubQueries <= 0 || ctx.Value(quotaKey{}) != nil {
		return ctx
	}
	return context.WithValue(ctx, quotaKey{}, &subQueryQuota{max: int64(ds.maxSubQueries)})
}

// chargeSubQuery counts one sub-query against the quota carried by ctx.
func chargeSubQuery(ctx context.Context) error {
	q, ok := ctx.Value(quotaKey{}).(*subQueryQuota)
	if !ok {
		return nil
	}
	return q.check()
}

// QuotaExceededError is returned when a query runs more sub-queries than
// the store allows. It fails the whole top-level query.
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("sub-query quota exceeded: more than %d sub-queries", e.Limit)
}

// IsQuotaExceeded reports whether err is or wraps a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// WithMaxSubQueries bounds the sub-queries one top-level Query may run,
// counted across all nesting levels. Zero or less means no limit.
func WithMaxSubQueries(n int) Option {
	return func(ds *DataStore) {
		ds.maxSubQueries = n
	}
}
