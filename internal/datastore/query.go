package datastore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/roach88/docstore/internal/eval"
	"github.com/roach88/docstore/internal/ir"
)

// Query runs spec against the store and returns the matching entries.
// See the package documentation for the evaluation steps.
func (ds *DataStore) Query(ctx context.Context, spec ir.QuerySpec) ([]ir.Entry, error) {
	start := time.Now()
	queriesTotal.Inc()
	ctx = ds.withQuota(ctx)

	results, scanned, err := ds.runQuery(ctx, spec)
	queryDuration.UpdateDuration(start)
	queryScanned.Update(float64(scanned))
	if err != nil {
		queryErrorsTotal.Inc()
		ds.logger.Warn("query failed",
			"prefix", spec.Prefix.String(),
			"error", err,
		)
		return nil, err
	}

	ds.logger.Debug("query executed",
		"prefix", spec.Prefix.String(),
		"scanned", scanned,
		"results", len(results),
		"duration", time.Since(start),
	)
	return results, nil
}

func (ds *DataStore) runQuery(ctx context.Context, spec ir.QuerySpec) ([]ir.Entry, int, error) {
	entries, err := ds.kv.Query(ctx, spec.Prefix)
	if err != nil {
		return nil, 0, err
	}
	scanned := len(entries)

	if spec.Filter != nil {
		kept := entries[:0]
		for _, e := range entries {
			ok, err := ds.evaluator.EvaluateBool(ctx, spec.Filter, e.Value)
			if err != nil {
				return nil, scanned, fmt.Errorf("filter %s: %w", e.Key, err)
			}
			if ok {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	if len(spec.OrderBy) > 0 {
		if entries, err = ds.orderEntries(ctx, spec.OrderBy, entries); err != nil {
			return nil, scanned, err
		}
	}

	if spec.Limit != nil {
		limit, err := ds.evaluateLimit(ctx, spec.Limit)
		if err != nil {
			return nil, scanned, err
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}

	if spec.Select != nil {
		for i, e := range entries {
			projected, err := ds.project(ctx, spec.Select, e.Value)
			if err != nil {
				return nil, scanned, fmt.Errorf("select %s: %w", e.Key, err)
			}
			entries[i] = ir.Entry{Key: e.Key, Value: projected}
		}
	}

	return entries, scanned, nil
}

// orderEntries evaluates every sort key up front, in scan order, then
// stable-sorts on the precomputed keys.
func (ds *DataStore) orderEntries(ctx context.Context, orderBy []ir.OrderBy, entries []ir.Entry) ([]ir.Entry, error) {
	type keyed struct {
		entry ir.Entry
		keys  []ir.IRValue
	}
	rows := make([]keyed, len(entries))
	for i, e := range entries {
		keys := make([]ir.IRValue, len(orderBy))
		for j, ob := range orderBy {
			v, err := ds.evaluator.Evaluate(ctx, ob.Expr, e.Value)
			if err != nil {
				return nil, fmt.Errorf("orderBy[%d] %s: %w", j, e.Key, err)
			}
			keys[j] = v
		}
		rows[i] = keyed{entry: e, keys: keys}
	}

	slices.SortStableFunc(rows, func(a, b keyed) int {
		for j, ob := range orderBy {
			c := eval.Compare(a.keys[j], b.keys[j])
			if c == 0 {
				continue
			}
			if ob.Desc {
				return -c
			}
			return c
		}
		return 0
	})

	out := make([]ir.Entry, len(rows))
	for i, r := range rows {
		out[i] = r.entry
	}
	return out, nil
}

// evaluateLimit evaluates the limit against an empty object. Fractions are
// truncated toward zero.
func (ds *DataStore) evaluateLimit(ctx context.Context, expr ir.Expr) (int, error) {
	v, err := ds.evaluator.Evaluate(ctx, expr, ir.IRObject{})
	if err != nil {
		return 0, fmt.Errorf("limit: %w", err)
	}
	n, ok := v.(ir.IRNumber)
	if !ok {
		return 0, &eval.EvalError{
			Code:    eval.ErrCodeTypeMismatch,
			Op:      "limit",
			Message: fmt.Sprintf("expected number, got %s", ir.KindName(v)),
		}
	}
	if n < 0 || math.IsNaN(float64(n)) {
		return 0, &eval.EvalError{
			Code:    eval.ErrCodeTypeMismatch,
			Op:      "limit",
			Message: fmt.Sprintf("must be a non-negative number, got %v", float64(n)),
		}
	}
	if float64(n) > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(n), nil
}

// project builds the selected object for one value. Absent results are
// left out of the object.
func (ds *DataStore) project(ctx context.Context, items []ir.SelectItem, value ir.IRValue) (ir.IRObject, error) {
	out := make(ir.IRObject, len(items))
	for _, item := range items {
		var v ir.IRValue
		if item.Expr == nil {
			if obj, ok := value.(ir.IRObject); ok {
				v = obj[item.Name]
			}
		} else {
			var err error
			if v, err = ds.evaluator.Evaluate(ctx, item.Expr, value); err != nil {
				return nil, fmt.Errorf("%s: %w", item.Name, err)
			}
		}
		if v != nil {
			out[item.Name] = ir.Clone(v)
		}
	}
	return out, nil
}
