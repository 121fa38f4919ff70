package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docstore/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Spec is a compiled spec file: named queries plus an ordered enricher list.
type Spec struct {
	Queries   map[string]ir.QuerySpec
	Enrichers []ir.ObjectEnricher
}

// QueryNames returns the query names in sorted order.
func (s *Spec) QueryNames() []string {
	names := make([]string, 0, len(s.Queries))
	for name := range s.Queries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Query returns the named query.
func (s *Spec) Query(name string) (ir.QuerySpec, error) {
	q, ok := s.Queries[name]
	if !ok {
		return ir.QuerySpec{}, fmt.Errorf("query %q not defined (have %v)", name, s.QueryNames())
	}
	return q, nil
}

// CompileString compiles CUE source text. filename is used in error
// positions and may be empty.
func CompileString(src, filename string) (*Spec, error) {
	ctx := cuecontext.New()
	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}
	v := ctx.CompileString(src, opts...)
	return CompileValue(v)
}

// CompileFile reads and compiles a CUE spec file.
func CompileFile(path string) (*Spec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	return CompileString(string(src), path)
}

// CompileValue validates v against the #File schema and decodes it.
// Uses the CUE SDK's Go API directly; v's context is reused for the schema.
func CompileValue(v cue.Value) (*Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#File")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &Spec{Queries: make(map[string]ir.QuerySpec)}

	queries := unified.LookupPath(cue.ParsePath("queries"))
	if queries.Exists() {
		iter, err := queries.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			q, err := compileQuery(iter.Value())
			if err != nil {
				return nil, withField(err, "queries."+name, iter.Value().Pos())
			}
			spec.Queries[name] = q
		}
	}

	enrichers := unified.LookupPath(cue.ParsePath("enrichers"))
	if enrichers.Exists() {
		iter, err := enrichers.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			e, err := compileEnricher(iter.Value())
			if err != nil {
				return nil, withField(err, fmt.Sprintf("enrichers[%d]", i), iter.Value().Pos())
			}
			spec.Enrichers = append(spec.Enrichers, e)
		}
	}

	return spec, nil
}

// CompileQuery decodes a single query value (not a whole file).
func CompileQuery(v cue.Value) (ir.QuerySpec, error) {
	if err := v.Err(); err != nil {
		return ir.QuerySpec{}, formatCUEError(err)
	}
	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	unified := schema.LookupPath(cue.ParsePath("#Query")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return ir.QuerySpec{}, formatCUEError(err)
	}
	q, err := compileQuery(unified)
	if err != nil {
		return ir.QuerySpec{}, withField(err, "query", v.Pos())
	}
	return q, nil
}

func compileQuery(v cue.Value) (ir.QuerySpec, error) {
	raw, err := toIR(v)
	if err != nil {
		return ir.QuerySpec{}, err
	}
	return ir.ParseQuerySpec(raw)
}

func compileEnricher(v cue.Value) (ir.ObjectEnricher, error) {
	raw, err := toIR(v)
	if err != nil {
		return ir.ObjectEnricher{}, err
	}
	e, err := ir.ParseObjectEnricher(raw)
	if err != nil {
		return e, err
	}

	// CUE iterates fields in declaration order.
	attrs := v.LookupPath(cue.ParsePath("attributes"))
	if attrs.Exists() {
		iter, err := attrs.Fields()
		if err != nil {
			return e, formatCUEError(err)
		}
		for iter.Next() {
			e.Order = append(e.Order, iter.Selector().Unquoted())
		}
	}
	return e, nil
}

// toIR walks a concrete CUE value into an IRValue. Definitions and hidden
// fields are skipped. Disjunctions resolve to their default.
func toIR(v cue.Value) (ir.IRValue, error) {
	if d, ok := v.Default(); ok {
		v = d
	}
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRNumber(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.BytesKind:
		b, err := v.Bytes()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBytes(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.IRArray{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.IRObject{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Selector().Unquoted()] = elem
		}
		return out, nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported or incomplete value of kind %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// withField attaches a field path to err, keeping an existing position.
func withField(err error, field string, pos token.Pos) error {
	if ce, ok := err.(*CompileError); ok {
		if !ce.Pos.IsValid() {
			ce.Pos = pos
		}
		ce.Field = field + "." + ce.Field
		return ce
	}
	return &CompileError{Field: field, Message: err.Error(), Pos: pos}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
