package ir

import "fmt"

// Expr represents a node of the query expression language.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the evaluator.
//
// Expression types:
//   - Literal: a string, number, boolean or null constant
//   - RegexpLiteral: a pattern with flags, only valid right of =~ and !=~
//   - ArrayLiteral: a list of sub-expressions
//   - Attr: attribute access on the root value or on a sub-expression
//   - BinaryOp: an operator applied to two sub-expressions
//   - Call: a call into the function registry
//   - QueryExpr: a sub-query handed to the registered query hook
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Literal is a constant. Value is one of IRString, IRNumber, IRBool or IRNull.
type Literal struct {
	Value IRValue
}

func (Literal) exprNode() {}

// RegexpLiteral carries a pattern and its flags ("i", "m", "s", ...).
type RegexpLiteral struct {
	Pattern string
	Flags   string
}

func (RegexpLiteral) exprNode() {}

// ArrayLiteral evaluates each element and yields the list of results.
type ArrayLiteral struct {
	Elements []Expr
}

func (ArrayLiteral) exprNode() {}

// Attr reads attribute Name of Base (or of the root value when Base is nil).
// An empty Name yields the base value itself.
type Attr struct {
	Base Expr
	Name string
}

func (Attr) exprNode() {}

// Operator names a binary operator.
type Operator string

// Supported binary operators.
const (
	OpEq        Operator = "="
	OpNotEq     Operator = "!="
	OpMatch     Operator = "=~"
	OpNotMatch  Operator = "!=~"
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpIn        Operator = "in"
	OpAnd       Operator = "and"
	OpOr        Operator = "or"
	OpAdd       Operator = "+"
	OpSub       Operator = "-"
	OpMul       Operator = "*"
	OpDiv       Operator = "/"
	OpMod       Operator = "%"
)

var operators = map[Operator]bool{
	OpEq: true, OpNotEq: true, OpMatch: true, OpNotMatch: true,
	OpLess: true, OpLessEq: true, OpGreater: true, OpGreaterEq: true,
	OpIn: true, OpAnd: true, OpOr: true,
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true,
}

// IsOperator reports whether op names a supported binary operator.
func IsOperator(op string) bool {
	return operators[Operator(op)]
}

// BinaryOp applies Op to Left and Right.
type BinaryOp struct {
	Op    Operator
	Left  Expr
	Right Expr
}

func (BinaryOp) exprNode() {}

// Call invokes the registry function Name with the evaluated Args.
type Call struct {
	Name string
	Args []Expr
}

func (Call) exprNode() {}

// QueryExpr passes Spec, unevaluated, to the query hook.
type QueryExpr struct {
	Spec IRValue
}

func (QueryExpr) exprNode() {}

// ParseExpr decodes the JSON wire form of an expression, for example
// ["=", ["attr", "name"], ["string", "Peter"]].
func ParseExpr(data []byte) (Expr, error) {
	raw, err := DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse expression: %w", err)
	}
	return ExprFromValue(raw)
}

// ExprFromGo decodes an expression from plain Go data (as produced by
// encoding/json, yaml.v3 or the CUE walker).
func ExprFromGo(v any) (Expr, error) {
	val, err := FromGo(v)
	if err != nil {
		return nil, fmt.Errorf("parse expression: %w", err)
	}
	return ExprFromValue(val)
}

// ExprFromValue decodes an expression whose wire form is already an IRValue.
func ExprFromValue(v IRValue) (Expr, error) {
	arr, ok := v.(IRArray)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("expression must be a non-empty list, got %s", KindName(v))
	}
	head, ok := arr[0].(IRString)
	if !ok {
		return nil, fmt.Errorf("expression tag must be a string, got %s", KindName(arr[0]))
	}
	args := arr[1:]

	switch tag := string(head); tag {
	case "string":
		if err := arity(tag, args, 1); err != nil {
			return nil, err
		}
		s, err := stringArg(tag, args, 0)
		if err != nil {
			return nil, err
		}
		return Literal{Value: IRString(s)}, nil

	case "number":
		if err := arity(tag, args, 1); err != nil {
			return nil, err
		}
		n, ok := args[0].(IRNumber)
		if !ok {
			return nil, fmt.Errorf("number: expected number, got %s", KindName(args[0]))
		}
		return Literal{Value: n}, nil

	case "boolean":
		if err := arity(tag, args, 1); err != nil {
			return nil, err
		}
		b, ok := args[0].(IRBool)
		if !ok {
			return nil, fmt.Errorf("boolean: expected boolean, got %s", KindName(args[0]))
		}
		return Literal{Value: b}, nil

	case "null":
		if err := arity(tag, args, 0); err != nil {
			return nil, err
		}
		return Literal{Value: IRNull{}}, nil

	case "regexp":
		if len(args) != 1 && len(args) != 2 {
			return nil, fmt.Errorf("regexp: expected pattern and optional flags")
		}
		pattern, err := stringArg(tag, args, 0)
		if err != nil {
			return nil, err
		}
		var flags string
		if len(args) == 2 {
			if flags, err = stringArg(tag, args, 1); err != nil {
				return nil, err
			}
		}
		return RegexpLiteral{Pattern: pattern, Flags: flags}, nil

	case "array":
		if err := arity(tag, args, 1); err != nil {
			return nil, err
		}
		elems, err := exprList(tag, args[0])
		if err != nil {
			return nil, err
		}
		return ArrayLiteral{Elements: elems}, nil

	case "attr":
		switch len(args) {
		case 1:
			name, err := stringArg(tag, args, 0)
			if err != nil {
				return nil, err
			}
			return Attr{Name: name}, nil
		case 2:
			base, err := ExprFromValue(args[0])
			if err != nil {
				return nil, fmt.Errorf("attr base: %w", err)
			}
			name, err := stringArg(tag, args, 1)
			if err != nil {
				return nil, err
			}
			return Attr{Base: base, Name: name}, nil
		default:
			return nil, fmt.Errorf("attr: expected name or base and name")
		}

	case "call":
		if len(args) != 1 && len(args) != 2 {
			return nil, fmt.Errorf("call: expected name and argument list")
		}
		name, err := stringArg(tag, args, 0)
		if err != nil {
			return nil, err
		}
		var callArgs []Expr
		if len(args) == 2 {
			if callArgs, err = exprList(tag, args[1]); err != nil {
				return nil, err
			}
		}
		return Call{Name: name, Args: callArgs}, nil

	case "query":
		if err := arity(tag, args, 1); err != nil {
			return nil, err
		}
		return QueryExpr{Spec: args[0]}, nil

	default:
		if !IsOperator(tag) {
			return nil, fmt.Errorf("unknown expression tag %q", tag)
		}
		if err := arity(tag, args, 2); err != nil {
			return nil, err
		}
		left, err := ExprFromValue(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s left: %w", tag, err)
		}
		right, err := ExprFromValue(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s right: %w", tag, err)
		}
		return BinaryOp{Op: Operator(tag), Left: left, Right: right}, nil
	}
}

// ExprToWire converts an expression back into its wire form.
func ExprToWire(e Expr) IRValue {
	switch n := e.(type) {
	case Literal:
		switch v := n.Value.(type) {
		case IRString:
			return IRArray{IRString("string"), v}
		case IRNumber:
			return IRArray{IRString("number"), v}
		case IRBool:
			return IRArray{IRString("boolean"), v}
		default:
			return IRArray{IRString("null")}
		}
	case RegexpLiteral:
		return IRArray{IRString("regexp"), IRString(n.Pattern), IRString(n.Flags)}
	case ArrayLiteral:
		return IRArray{IRString("array"), wireList(n.Elements)}
	case Attr:
		if n.Base == nil {
			return IRArray{IRString("attr"), IRString(n.Name)}
		}
		return IRArray{IRString("attr"), ExprToWire(n.Base), IRString(n.Name)}
	case BinaryOp:
		return IRArray{IRString(n.Op), ExprToWire(n.Left), ExprToWire(n.Right)}
	case Call:
		return IRArray{IRString("call"), IRString(n.Name), wireList(n.Args)}
	case QueryExpr:
		return IRArray{IRString("query"), n.Spec}
	default:
		return IRNull{}
	}
}

// MarshalExpr renders the wire form of e as JSON.
func MarshalExpr(e Expr) ([]byte, error) {
	return EncodeValue(ExprToWire(e))
}

func wireList(exprs []Expr) IRArray {
	out := make(IRArray, len(exprs))
	for i, e := range exprs {
		out[i] = ExprToWire(e)
	}
	return out
}

func arity(tag string, args IRArray, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", tag, n, len(args))
	}
	return nil
}

func stringArg(tag string, args IRArray, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", tag, i)
	}
	s, ok := args[i].(IRString)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %s", tag, i, KindName(args[i]))
	}
	return string(s), nil
}

func exprList(tag string, v IRValue) ([]Expr, error) {
	list, ok := v.(IRArray)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of expressions, got %s", tag, KindName(v))
	}
	out := make([]Expr, len(list))
	for i, elem := range list {
		e, err := ExprFromValue(elem)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", tag, i, err)
		}
		out[i] = e
	}
	return out, nil
}
