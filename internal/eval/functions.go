package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/docstore/internal/ir"
)

// QueryFunctionName is the reserved registry name of the sub-query hook.
// Query nodes call it with a single argument: the opaque query spec.
const QueryFunctionName = "$query"

// Function is a registry entry callable from expressions.
//
// This is a sealed interface: only SyncFunc and AsyncFunc implement it, so
// the evaluator always knows whether a call may suspend.
type Function interface {
	function()
}

// SyncFunc computes its result inline. It is callable from both
// Evaluate and EvaluateSync.
type SyncFunc func(args []ir.IRValue) (ir.IRValue, error)

func (SyncFunc) function() {}

// AsyncFunc may block (I/O, sub-queries). Calling it is a suspension point,
// so it is rejected by EvaluateSync.
type AsyncFunc func(ctx context.Context, args []ir.IRValue) (ir.IRValue, error)

func (AsyncFunc) function() {}

// Functions maps names to callable functions.
type Functions map[string]Function

// Clone returns a shallow copy of the registry.
func (f Functions) Clone() Functions {
	out := make(Functions, len(f))
	for name, fn := range f {
		out[name] = fn
	}
	return out
}

// Builtins returns the default function set:
//
//	count(list)   number of elements
//	min(n...)     smallest number
//	max(n...)     largest number
//	lower(s)      lower-cased string
//	upper(s)      upper-cased string
func Builtins() Functions {
	return Functions{
		"count": SyncFunc(builtinCount),
		"min":   SyncFunc(builtinMin),
		"max":   SyncFunc(builtinMax),
		"lower": SyncFunc(stringFunc("lower", strings.ToLower)),
		"upper": SyncFunc(stringFunc("upper", strings.ToUpper)),
	}
}

func builtinCount(args []ir.IRValue) (ir.IRValue, error) {
	if len(args) != 1 {
		return nil, newError(ErrCodeTypeMismatch, "count", "expected 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case ir.IRArray:
		return ir.IRNumber(len(v)), nil
	case ir.IRObject:
		return ir.IRNumber(len(v)), nil
	default:
		return nil, newError(ErrCodeTypeMismatch, "count", "expected list, got %s", ir.KindName(args[0]))
	}
}

func builtinMin(args []ir.IRValue) (ir.IRValue, error) {
	return reduceNumbers("min", args, func(a, b float64) bool { return a < b })
}

func builtinMax(args []ir.IRValue) (ir.IRValue, error) {
	return reduceNumbers("max", args, func(a, b float64) bool { return a > b })
}

// reduceNumbers keeps the number for which better(candidate, current) holds.
// A single list argument is spread.
func reduceNumbers(name string, args []ir.IRValue, better func(a, b float64) bool) (ir.IRValue, error) {
	if len(args) == 1 {
		if list, ok := args[0].(ir.IRArray); ok {
			args = list
		}
	}
	if len(args) == 0 {
		return nil, newError(ErrCodeTypeMismatch, name, "expected at least one number")
	}
	var best float64
	for i, arg := range args {
		n, ok := arg.(ir.IRNumber)
		if !ok {
			return nil, newError(ErrCodeTypeMismatch, name, "argument %d: expected number, got %s", i, ir.KindName(arg))
		}
		if i == 0 || better(float64(n), best) {
			best = float64(n)
		}
	}
	return ir.IRNumber(best), nil
}

func stringFunc(name string, fn func(string) string) func([]ir.IRValue) (ir.IRValue, error) {
	return func(args []ir.IRValue) (ir.IRValue, error) {
		if len(args) != 1 {
			return nil, newError(ErrCodeTypeMismatch, name, "expected 1 argument, got %d", len(args))
		}
		s, ok := args[0].(ir.IRString)
		if !ok {
			return nil, newError(ErrCodeTypeMismatch, name, "expected string, got %s", ir.KindName(args[0]))
		}
		return ir.IRString(fn(string(s))), nil
	}
}

// describeFunction is used in log lines and errors.
func describeFunction(fn Function) string {
	switch fn.(type) {
	case SyncFunc:
		return "sync"
	case AsyncFunc:
		return "async"
	default:
		return fmt.Sprintf("%T", fn)
	}
}
