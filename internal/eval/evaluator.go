package eval

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/docstore/internal/ir"
)

// Evaluator evaluates expressions against a function registry.
// An Evaluator holds no per-evaluation state and is safe for concurrent use
// as long as the registry is not mutated.
type Evaluator struct {
	funcs Functions
}

// New creates an Evaluator over funcs. The registry is copied.
func New(funcs Functions) *Evaluator {
	return &Evaluator{funcs: funcs.Clone()}
}

// Functions returns the registry the evaluator resolves calls against.
func (e *Evaluator) Functions() Functions {
	return e.funcs
}

// Evaluate evaluates expr against root. AsyncFunc calls and query nodes are
// invoked with ctx.
func (e *Evaluator) Evaluate(ctx context.Context, expr ir.Expr, root ir.IRValue) (ir.IRValue, error) {
	w := walker{funcs: e.funcs, ctx: ctx}
	return w.eval(expr, root)
}

// EvaluateSync evaluates expr against root without ever suspending.
// Reaching an AsyncFunc call or a query node fails with
// ErrCodeSynchronyViolation before anything is invoked.
func (e *Evaluator) EvaluateSync(expr ir.Expr, root ir.IRValue) (ir.IRValue, error) {
	w := walker{funcs: e.funcs, sync: true}
	return w.eval(expr, root)
}

// EvaluateBool is Evaluate for expressions that must produce a boolean.
func (e *Evaluator) EvaluateBool(ctx context.Context, expr ir.Expr, root ir.IRValue) (bool, error) {
	v, err := e.Evaluate(ctx, expr, root)
	if err != nil {
		return false, err
	}
	return asBool(v, "result")
}

// EvaluateBoolSync is EvaluateSync for expressions that must produce a boolean.
func (e *Evaluator) EvaluateBoolSync(expr ir.Expr, root ir.IRValue) (bool, error) {
	v, err := e.EvaluateSync(expr, root)
	if err != nil {
		return false, err
	}
	return asBool(v, "result")
}

// walker is the AST-walking core shared by both entry points.
type walker struct {
	funcs Functions
	ctx   context.Context
	sync  bool
}

func (w walker) eval(expr ir.Expr, root ir.IRValue) (ir.IRValue, error) {
	switch n := expr.(type) {
	case ir.Literal:
		if n.Value == nil {
			return ir.IRNull{}, nil
		}
		return n.Value, nil

	case ir.RegexpLiteral:
		return nil, newError(ErrCodeInvalidRegexp, "regexp",
			"regexp literal is only valid as the right operand of %s or %s", ir.OpMatch, ir.OpNotMatch)

	case ir.ArrayLiteral:
		out := make(ir.IRArray, len(n.Elements))
		for i, elem := range n.Elements {
			v, err := w.eval(elem, root)
			if err != nil {
				return nil, err
			}
			// Lists cannot hold absent values.
			if v == nil {
				v = ir.IRNull{}
			}
			out[i] = v
		}
		return out, nil

	case ir.Attr:
		base := root
		if n.Base != nil {
			v, err := w.eval(n.Base, root)
			if err != nil {
				return nil, err
			}
			base = v
		}
		if n.Name == "" {
			return base, nil
		}
		if obj, ok := base.(ir.IRObject); ok {
			return obj[n.Name], nil
		}
		return nil, nil

	case ir.BinaryOp:
		return w.binary(n, root)

	case ir.Call:
		return w.call(n, root)

	case ir.QueryExpr:
		return w.query(n)

	case nil:
		return nil, newError(ErrCodeInvalidExpression, "", "missing expression")

	default:
		return nil, newError(ErrCodeInvalidExpression, "", "unknown expression type %T", expr)
	}
}

func (w walker) binary(n ir.BinaryOp, root ir.IRValue) (ir.IRValue, error) {
	left, err := w.eval(n.Left, root)
	if err != nil {
		return nil, err
	}

	if n.Op == ir.OpMatch || n.Op == ir.OpNotMatch {
		lit, ok := n.Right.(ir.RegexpLiteral)
		if !ok {
			return nil, newError(ErrCodeInvalidRegexp, string(n.Op), "right operand must be a regexp literal")
		}
		re, err := compileRegexp(lit)
		if err != nil {
			return nil, err
		}
		s, isString := left.(ir.IRString)
		matched := isString && re.MatchString(string(s))
		if n.Op == ir.OpNotMatch {
			return ir.IRBool(!matched), nil
		}
		return ir.IRBool(matched), nil
	}

	right, err := w.eval(n.Right, root)
	if err != nil {
		return nil, err
	}

	op := string(n.Op)
	switch n.Op {
	case ir.OpEq:
		return ir.IRBool(Matches(left, right)), nil
	case ir.OpNotEq:
		return ir.IRBool(!Matches(left, right)), nil

	case ir.OpIn:
		list, ok := right.(ir.IRArray)
		if !ok {
			return nil, newError(ErrCodeTypeMismatch, op, "right operand must be a list, got %s", ir.KindName(right))
		}
		return ir.IRBool(contains(list, left)), nil

	case ir.OpAnd, ir.OpOr:
		l, err := asBool(left, op)
		if err != nil {
			return nil, err
		}
		r, err := asBool(right, op)
		if err != nil {
			return nil, err
		}
		if n.Op == ir.OpAnd {
			return ir.IRBool(l && r), nil
		}
		return ir.IRBool(l || r), nil

	case ir.OpLess, ir.OpLessEq, ir.OpGreater, ir.OpGreaterEq:
		c, err := compareOrdered(op, left, right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case ir.OpLess:
			return ir.IRBool(c < 0), nil
		case ir.OpLessEq:
			return ir.IRBool(c <= 0), nil
		case ir.OpGreater:
			return ir.IRBool(c > 0), nil
		default:
			return ir.IRBool(c >= 0), nil
		}

	case ir.OpAdd:
		if ls, ok := left.(ir.IRString); ok {
			rs, ok := right.(ir.IRString)
			if !ok {
				return nil, mismatch(op, left, right)
			}
			return ls + rs, nil
		}
		return arithmetic(op, left, right, func(a, b float64) float64 { return a + b })
	case ir.OpSub:
		return arithmetic(op, left, right, func(a, b float64) float64 { return a - b })
	case ir.OpMul:
		return arithmetic(op, left, right, func(a, b float64) float64 { return a * b })
	case ir.OpDiv:
		return arithmetic(op, left, right, func(a, b float64) float64 { return a / b })
	case ir.OpMod:
		return arithmetic(op, left, right, math.Mod)

	default:
		return nil, newError(ErrCodeInvalidExpression, op, "unknown operator")
	}
}

func (w walker) call(n ir.Call, root ir.IRValue) (ir.IRValue, error) {
	fn, ok := w.funcs[n.Name]
	if !ok {
		return nil, newError(ErrCodeUnknownFunction, n.Name, "function %q is not registered", n.Name)
	}
	if _, async := fn.(AsyncFunc); async && w.sync {
		return nil, newError(ErrCodeSynchronyViolation, n.Name,
			"call to %s function %q requires suspension", describeFunction(fn), n.Name)
	}

	args := make([]ir.IRValue, len(n.Args))
	for i, arg := range n.Args {
		v, err := w.eval(arg, root)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return w.invoke(n.Name, fn, args)
}

func (w walker) query(n ir.QueryExpr) (ir.IRValue, error) {
	if w.sync {
		return nil, newError(ErrCodeSynchronyViolation, "query", "sub-query requires suspension")
	}
	fn, ok := w.funcs[QueryFunctionName]
	if !ok {
		return nil, newError(ErrCodeUnknownFunction, "query", "no sub-query hook registered under %q", QueryFunctionName)
	}
	spec := n.Spec
	if spec == nil {
		spec = ir.IRNull{}
	}
	return w.invoke(QueryFunctionName, fn, []ir.IRValue{spec})
}

func (w walker) invoke(name string, fn Function, args []ir.IRValue) (ir.IRValue, error) {
	var (
		result ir.IRValue
		err    error
	)
	switch f := fn.(type) {
	case SyncFunc:
		result, err = f(args)
	case AsyncFunc:
		ctx := w.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err = f(ctx, args)
	default:
		return nil, newError(ErrCodeInvalidExpression, name, "unsupported function type %T", fn)
	}
	if err != nil {
		if IsEvalError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("call %q: %w", name, err)
	}
	return result, nil
}

func asBool(v ir.IRValue, op string) (bool, error) {
	b, ok := v.(ir.IRBool)
	if !ok {
		return false, newError(ErrCodeNonBoolean, op, "expected boolean, got %s", ir.KindName(v))
	}
	return bool(b), nil
}

func compareOrdered(op string, left, right ir.IRValue) (int, error) {
	switch l := left.(type) {
	case ir.IRNumber:
		if r, ok := right.(ir.IRNumber); ok {
			return Compare(l, r), nil
		}
	case ir.IRString:
		if r, ok := right.(ir.IRString); ok {
			return Compare(l, r), nil
		}
	}
	return 0, mismatch(op, left, right)
}

func arithmetic(op string, left, right ir.IRValue, fn func(a, b float64) float64) (ir.IRValue, error) {
	l, lok := left.(ir.IRNumber)
	r, rok := right.(ir.IRNumber)
	if !lok || !rok {
		return nil, mismatch(op, left, right)
	}
	result := fn(float64(l), float64(r))
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, newError(ErrCodeTypeMismatch, op, "result of %v %s %v is not a finite number", float64(l), op, float64(r))
	}
	return ir.IRNumber(result), nil
}

func mismatch(op string, left, right ir.IRValue) *EvalError {
	return newError(ErrCodeTypeMismatch, op, "cannot apply to %s and %s", ir.KindName(left), ir.KindName(right))
}
