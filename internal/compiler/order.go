package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/docstore/internal/ir"
)

// OrderWarning reports an enricher that reads an attribute written only by
// a later enricher.
//
// Ordering issues are warnings, not errors, because they may be intentional:
// the earlier enricher may rely on the attribute being absent.
type OrderWarning struct {
	Reader  int    `json:"reader"`  // Index of the reading enricher
	Writer  int    `json:"writer"`  // Index of the later writing enricher
	Path    string `json:"path"`    // Attribute path involved
	Message string `json:"message"` // Human-readable description
	Level   string `json:"level"`   // "warning"
}

// AnalyzeOrdering performs static read/write analysis on an enricher list.
//
// The algorithm:
//  1. Collect the root attribute paths each enricher reads (where and
//     attribute expressions)
//  2. Collect the paths each enricher writes
//  3. Report each read that overlaps a write of a later enricher and no
//     write of an earlier one or of the reader itself
//
// Two paths overlap when one is a segment prefix of the other.
func AnalyzeOrdering(enrichers []ir.ObjectEnricher) []OrderWarning {
	writes := make([][]string, len(enrichers))
	for i, e := range enrichers {
		writes[i] = e.SortedPaths()
	}

	var warnings []OrderWarning
	for i, e := range enrichers {
		for _, read := range readPaths(e) {
			if writtenBefore(writes[:i+1], read) {
				continue
			}
			for j := i + 1; j < len(enrichers); j++ {
				if w, ok := overlapping(writes[j], read); ok {
					warnings = append(warnings, OrderWarning{
						Reader:  i,
						Writer:  j,
						Path:    w,
						Message: fmt.Sprintf("enricher %d reads %q which enricher %d writes later", i, read, j),
						Level:   "warning",
					})
					break
				}
			}
		}
	}
	return warnings
}

// readPaths returns the distinct root attribute paths e reads, in first-seen
// order.
func readPaths(e ir.ObjectEnricher) []string {
	seen := make(map[string]bool)
	var paths []string
	var collect func(expr ir.Expr)
	collect = func(expr ir.Expr) {
		if attr, ok := expr.(ir.Attr); ok {
			if path, ok := attrPath(attr); ok {
				if path != "" && !seen[path] {
					seen[path] = true
					paths = append(paths, path)
				}
				return
			}
		}
		switch n := expr.(type) {
		case ir.ArrayLiteral:
			for _, elem := range n.Elements {
				collect(elem)
			}
		case ir.Attr:
			collect(n.Base)
		case ir.BinaryOp:
			collect(n.Left)
			collect(n.Right)
		case ir.Call:
			for _, arg := range n.Args {
				collect(arg)
			}
		}
	}

	collect(e.Where)
	for _, p := range e.SortedPaths() {
		collect(e.Attributes[p])
	}
	return paths
}

// attrPath flattens a chain of attribute reads rooted at the evaluated value.
func attrPath(a ir.Attr) (string, bool) {
	var segs []string
	var node ir.Expr = a
	for {
		switch n := node.(type) {
		case ir.Attr:
			if n.Name != "" {
				segs = append(segs, n.Name)
			}
			if n.Base == nil {
				for l, r := 0, len(segs)-1; l < r; l, r = l+1, r-1 {
					segs[l], segs[r] = segs[r], segs[l]
				}
				return strings.Join(segs, "."), true
			}
			node = n.Base
		default:
			return "", false
		}
	}
}

func writtenBefore(writes [][]string, read string) bool {
	for _, w := range writes {
		if _, ok := overlapping(w, read); ok {
			return true
		}
	}
	return false
}

func overlapping(paths []string, read string) (string, bool) {
	for _, p := range paths {
		if p == read || strings.HasPrefix(p, read+".") || strings.HasPrefix(read, p+".") {
			return p, true
		}
	}
	return "", false
}
