package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docstore/internal/eval"
	"github.com/roach88/docstore/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported value for validation

	// Expression errors (E101-E109)
	ErrUnknownFunction  = "E101" // call to an unregistered function
	ErrRegexpPlacement  = "E102" // regexp literal outside =~ / !=~
	ErrInvalidRegexp    = "E103" // regexp that does not compile
	ErrDuplicateSelect  = "E104" // two select items with the same name
	ErrMissingQueryHook = "E105" // query node with no $query function

	// Enricher errors (E110-E119)
	ErrInvalidPath    = "E110" // attribute path with an empty segment
	ErrSuspendingCall = "E111" // async call or sub-query in an enricher
	ErrPathConflict   = "E112" // one attribute path is a prefix of another
)

// ValidationError represents a static validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled queries and enrichers against a function registry.
// Returns all errors found (does not fail-fast).
// Supports *Spec, ir.QuerySpec and ir.ObjectEnricher.
func Validate(v any, funcs eval.Functions) []ValidationError {
	switch val := v.(type) {
	case *Spec:
		var errs []ValidationError
		for _, name := range val.QueryNames() {
			errs = append(errs, validateQuery("queries."+name, val.Queries[name], funcs)...)
		}
		for i, e := range val.Enrichers {
			errs = append(errs, validateEnricher(fmt.Sprintf("enrichers[%d]", i), e, funcs)...)
		}
		return errs
	case ir.QuerySpec:
		return validateQuery("query", val, funcs)
	case ir.ObjectEnricher:
		return validateEnricher("enricher", val, funcs)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateQuery(field string, q ir.QuerySpec, funcs eval.Functions) []ValidationError {
	var errs []ValidationError

	if q.Filter != nil {
		errs = append(errs, validateExpr(field+".filter", q.Filter, funcs)...)
	}
	for i, ob := range q.OrderBy {
		errs = append(errs, validateExpr(fmt.Sprintf("%s.orderBy[%d]", field, i), ob.Expr, funcs)...)
	}
	if q.Limit != nil {
		errs = append(errs, validateExpr(field+".limit", q.Limit, funcs)...)
	}

	// E104: select names must be unique
	seen := make(map[string]bool)
	for i, sel := range q.Select {
		selField := fmt.Sprintf("%s.select[%d]", field, i)
		if seen[sel.Name] {
			errs = append(errs, ValidationError{
				Field:   selField,
				Message: fmt.Sprintf("duplicate select name %q", sel.Name),
				Code:    ErrDuplicateSelect,
			})
		}
		seen[sel.Name] = true
		if sel.Expr != nil {
			errs = append(errs, validateExpr(selField, sel.Expr, funcs)...)
		}
	}

	return errs
}

func validateEnricher(field string, e ir.ObjectEnricher, funcs eval.Functions) []ValidationError {
	var errs []ValidationError

	errs = append(errs, validateExpr(field+".where", e.Where, funcs)...)
	errs = append(errs, checkSynchronous(field+".where", e.Where, funcs)...)

	paths := e.SortedPaths()
	for _, path := range paths {
		attrField := fmt.Sprintf("%s.attributes[%q]", field, path)

		// E110: every segment must be non-empty
		if slices.Contains(strings.Split(path, "."), "") {
			errs = append(errs, ValidationError{
				Field:   attrField,
				Message: fmt.Sprintf("invalid attribute path %q", path),
				Code:    ErrInvalidPath,
			})
		}

		expr := e.Attributes[path]
		errs = append(errs, validateExpr(attrField, expr, funcs)...)
		errs = append(errs, checkSynchronous(attrField, expr, funcs)...)
	}

	// E112: a path that prefixes another would land inside a value it wrote
	for i := 1; i < len(paths); i++ {
		if strings.HasPrefix(paths[i], paths[i-1]+".") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.attributes[%q]", field, paths[i]),
				Message: fmt.Sprintf("path is nested under sibling attribute %q", paths[i-1]),
				Code:    ErrPathConflict,
			})
		}
	}

	return errs
}

// validateExpr checks function names and regexp literals.
func validateExpr(field string, e ir.Expr, funcs eval.Functions) []ValidationError {
	var errs []ValidationError

	walkExpr(e, func(node ir.Expr) {
		switch n := node.(type) {
		case ir.Call:
			// E101: unknown function
			if _, ok := funcs[n.Name]; !ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("function %q is not registered", n.Name),
					Code:    ErrUnknownFunction,
				})
			}
		case ir.QueryExpr:
			// E105: sub-queries need a hook
			if _, ok := funcs[eval.QueryFunctionName]; !ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("query node requires a %q function", eval.QueryFunctionName),
					Code:    ErrMissingQueryHook,
				})
			}
		case ir.BinaryOp:
			if n.Op == ir.OpMatch || n.Op == ir.OpNotMatch {
				if re, ok := n.Right.(ir.RegexpLiteral); ok {
					// E103: pattern must compile
					if err := eval.CheckRegexp(re); err != nil {
						errs = append(errs, ValidationError{
							Field:   field,
							Message: err.Error(),
							Code:    ErrInvalidRegexp,
						})
					}
				}
			}
			// E102: regexps belong on the right of a match
			if _, ok := n.Left.(ir.RegexpLiteral); ok {
				errs = append(errs, regexpPlacement(field))
			}
			if _, ok := n.Right.(ir.RegexpLiteral); ok && n.Op != ir.OpMatch && n.Op != ir.OpNotMatch {
				errs = append(errs, regexpPlacement(field))
			}
		}
	})

	if _, ok := e.(ir.RegexpLiteral); ok {
		errs = append(errs, regexpPlacement(field))
	}
	return errs
}

// checkSynchronous reports nodes that would fail synchronous evaluation.
func checkSynchronous(field string, e ir.Expr, funcs eval.Functions) []ValidationError {
	var errs []ValidationError
	walkExpr(e, func(node ir.Expr) {
		switch n := node.(type) {
		case ir.QueryExpr:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "sub-queries cannot run during enrichment",
				Code:    ErrSuspendingCall,
			})
		case ir.Call:
			if _, async := funcs[n.Name].(eval.AsyncFunc); async {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("async function %q cannot run during enrichment", n.Name),
					Code:    ErrSuspendingCall,
				})
			}
		}
	})
	return errs
}

func regexpPlacement(field string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: "regexp literal is only valid as the right operand of =~ or !=~",
		Code:    ErrRegexpPlacement,
	}
}

// walkExpr visits e and every sub-expression, parents first.
// The opaque spec of a query node is not descended into.
func walkExpr(e ir.Expr, visit func(ir.Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch n := e.(type) {
	case ir.ArrayLiteral:
		for _, elem := range n.Elements {
			walkExpr(elem, visit)
		}
	case ir.Attr:
		walkExpr(n.Base, visit)
	case ir.BinaryOp:
		walkExpr(n.Left, visit)
		walkExpr(n.Right, visit)
	case ir.Call:
		for _, arg := range n.Args {
			walkExpr(arg, visit)
		}
	}
}
