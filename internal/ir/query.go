package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// QuerySpec describes a declarative query over the entries under Prefix.
//
// Semantics:
//
//	scan Prefix -> keep where Filter -> stable sort by OrderBy
//	  -> truncate to Limit -> project Select
//
// Filter, Limit and every OrderBy/Select expression are optional; a nil
// Filter keeps everything and a nil Select returns stored values unchanged.
type QuerySpec struct {
	Prefix  Key
	Filter  Expr
	OrderBy []OrderBy
	Limit   Expr
	Select  []SelectItem
}

// OrderBy is one sort key of a query. Desc reverses its direction.
type OrderBy struct {
	Expr Expr
	Desc bool
}

// SelectItem names one attribute of a projected result. When Expr is nil the
// attribute Name is copied from the stored value.
type SelectItem struct {
	Name string
	Expr Expr
}

// ObjectEnricher injects computed attributes into objects matching Where.
// Attribute paths are dot-separated ("pageDecoration.prefix").
//
// Order records the declaration order of Attributes. Attributes apply in
// that order, so a later attribute can read an earlier one.
type ObjectEnricher struct {
	Where      Expr
	Attributes map[string]Expr
	Order      []string
}

// Paths returns the attribute paths in application order: the paths listed
// in Order first, then any others in lexical order.
func (e ObjectEnricher) Paths() []string {
	paths := make([]string, 0, len(e.Attributes))
	seen := make(map[string]bool, len(e.Attributes))
	for _, p := range e.Order {
		if _, ok := e.Attributes[p]; ok && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, p := range e.SortedPaths() {
		if !seen[p] {
			paths = append(paths, p)
		}
	}
	return paths
}

// SortedPaths returns the attribute paths in lexical order.
func (e ObjectEnricher) SortedPaths() []string {
	paths := make([]string, 0, len(e.Attributes))
	for p := range e.Attributes {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// ParseQuerySpec decodes the wire form of a query:
//
//	{prefix: [...], filter?: expr, orderBy?: [{expr, desc}], limit?: expr,
//	 select?: [{name, expr?}]}
func ParseQuerySpec(v IRValue) (QuerySpec, error) {
	var spec QuerySpec
	obj, ok := v.(IRObject)
	if !ok {
		return spec, fmt.Errorf("query: expected object, got %s", KindName(v))
	}

	for field := range obj {
		switch field {
		case "prefix", "filter", "orderBy", "limit", "select":
		default:
			return spec, fmt.Errorf("query: unknown field %q", field)
		}
	}

	prefix, err := keyFromValue(obj["prefix"])
	if err != nil {
		return spec, fmt.Errorf("query prefix: %w", err)
	}
	spec.Prefix = prefix

	if raw, ok := obj["filter"]; ok {
		if spec.Filter, err = ExprFromValue(raw); err != nil {
			return spec, fmt.Errorf("query filter: %w", err)
		}
	}

	if raw, ok := obj["orderBy"]; ok {
		list, ok := raw.(IRArray)
		if !ok {
			return spec, fmt.Errorf("query orderBy: expected list, got %s", KindName(raw))
		}
		for i, item := range list {
			ob, err := parseOrderBy(item)
			if err != nil {
				return spec, fmt.Errorf("query orderBy[%d]: %w", i, err)
			}
			spec.OrderBy = append(spec.OrderBy, ob)
		}
	}

	if raw, ok := obj["limit"]; ok {
		if spec.Limit, err = ExprFromValue(raw); err != nil {
			return spec, fmt.Errorf("query limit: %w", err)
		}
	}

	if raw, ok := obj["select"]; ok {
		list, ok := raw.(IRArray)
		if !ok {
			return spec, fmt.Errorf("query select: expected list, got %s", KindName(raw))
		}
		spec.Select = make([]SelectItem, 0, len(list))
		for i, item := range list {
			sel, err := parseSelectItem(item)
			if err != nil {
				return spec, fmt.Errorf("query select[%d]: %w", i, err)
			}
			spec.Select = append(spec.Select, sel)
		}
	}

	return spec, nil
}

// ParseObjectEnricherJSON decodes the JSON wire form of an enricher and
// keeps the declaration order of its attributes.
func ParseObjectEnricherJSON(data []byte) (ObjectEnricher, error) {
	v, err := UnmarshalJSONValue(data)
	if err != nil {
		return ObjectEnricher{}, err
	}
	enricher, err := ParseObjectEnricher(v)
	if err != nil {
		return enricher, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return enricher, fmt.Errorf("enricher: %w", err)
	}
	if raw, ok := fields["attributes"]; ok {
		if enricher.Order, err = objectKeyOrder(raw); err != nil {
			return enricher, fmt.Errorf("enricher attributes: %w", err)
		}
	}
	return enricher, nil
}

// objectKeyOrder lists the keys of a JSON object in document order.
func objectKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("expected object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ParseObjectEnricher decodes the wire form {where: expr, attributes: {path: expr}}.
// An IRObject carries no key order, so Order is left empty and attributes
// apply in lexical order. ParseObjectEnricherJSON and the CUE compiler
// record declaration order.
func ParseObjectEnricher(v IRValue) (ObjectEnricher, error) {
	var enricher ObjectEnricher
	obj, ok := v.(IRObject)
	if !ok {
		return enricher, fmt.Errorf("enricher: expected object, got %s", KindName(v))
	}

	whereRaw, ok := obj["where"]
	if !ok {
		return enricher, fmt.Errorf("enricher: where is required")
	}
	where, err := ExprFromValue(whereRaw)
	if err != nil {
		return enricher, fmt.Errorf("enricher where: %w", err)
	}
	enricher.Where = where

	enricher.Attributes = make(map[string]Expr)
	if raw, ok := obj["attributes"]; ok {
		attrs, ok := raw.(IRObject)
		if !ok {
			return enricher, fmt.Errorf("enricher attributes: expected object, got %s", KindName(raw))
		}
		for path, exprRaw := range attrs {
			if path == "" {
				return enricher, fmt.Errorf("enricher attributes: empty path")
			}
			e, err := ExprFromValue(exprRaw)
			if err != nil {
				return enricher, fmt.Errorf("enricher attribute %q: %w", path, err)
			}
			enricher.Attributes[path] = e
		}
	}

	return enricher, nil
}

func parseOrderBy(v IRValue) (OrderBy, error) {
	var ob OrderBy
	obj, ok := v.(IRObject)
	if !ok {
		return ob, fmt.Errorf("expected object, got %s", KindName(v))
	}
	raw, ok := obj["expr"]
	if !ok {
		return ob, fmt.Errorf("expr is required")
	}
	e, err := ExprFromValue(raw)
	if err != nil {
		return ob, err
	}
	ob.Expr = e
	if d, ok := obj["desc"]; ok {
		b, ok := d.(IRBool)
		if !ok {
			return ob, fmt.Errorf("desc must be a boolean, got %s", KindName(d))
		}
		ob.Desc = bool(b)
	}
	return ob, nil
}

func parseSelectItem(v IRValue) (SelectItem, error) {
	var sel SelectItem
	obj, ok := v.(IRObject)
	if !ok {
		return sel, fmt.Errorf("expected object, got %s", KindName(v))
	}
	name, ok := obj["name"].(IRString)
	if !ok || name == "" {
		return sel, fmt.Errorf("name must be a non-empty string")
	}
	sel.Name = string(name)
	if raw, ok := obj["expr"]; ok {
		e, err := ExprFromValue(raw)
		if err != nil {
			return sel, err
		}
		sel.Expr = e
	}
	return sel, nil
}

func keyFromValue(v IRValue) (Key, error) {
	if v == nil {
		return Key{}, nil
	}
	list, ok := v.(IRArray)
	if !ok {
		return nil, fmt.Errorf("expected list of strings, got %s", KindName(v))
	}
	key := make(Key, len(list))
	for i, seg := range list {
		s, ok := seg.(IRString)
		if !ok {
			return nil, fmt.Errorf("segment %d must be a string, got %s", i, KindName(seg))
		}
		key[i] = string(s)
	}
	return key, nil
}
