package eval

import (
	"bytes"
	"cmp"
	"slices"
	"strings"

	"github.com/roach88/docstore/internal/ir"
)

// kindRank orders value kinds for cross-type comparison:
//
//	absent < null < boolean < number < string < bytes < list < object
func kindRank(v ir.IRValue) int {
	switch v.(type) {
	case nil:
		return 0
	case ir.IRNull:
		return 1
	case ir.IRBool:
		return 2
	case ir.IRNumber:
		return 3
	case ir.IRString:
		return 4
	case ir.IRBytes:
		return 5
	case ir.IRArray:
		return 6
	case ir.IRObject:
		return 7
	default:
		return 8
	}
}

// Compare returns -1, 0 or 1 ordering a before, equal to or after b.
//
// Same-kind values compare naturally: booleans false < true, numbers
// numerically, strings and bytes bytewise, lists element by element with
// the shorter list first on a tie, objects by their sorted key lists and
// then by the values under those keys. Values of different kinds compare by
// kind rank. The order is total, so it is safe for sorting.
func Compare(a, b ir.IRValue) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch av := a.(type) {
	case ir.IRBool:
		bv := b.(ir.IRBool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case ir.IRNumber:
		return cmp.Compare(float64(av), float64(b.(ir.IRNumber)))
	case ir.IRString:
		return strings.Compare(string(av), string(b.(ir.IRString)))
	case ir.IRBytes:
		return bytes.Compare(av, b.(ir.IRBytes))
	case ir.IRArray:
		return slices.CompareFunc(av, b.(ir.IRArray), Compare)
	case ir.IRObject:
		bv := b.(ir.IRObject)
		ak, bk := sortedKeys(av), sortedKeys(bv)
		if c := slices.Compare(ak, bk); c != 0 {
			return c
		}
		for _, k := range ak {
			if c := Compare(av[k], bv[k]); c != 0 {
				return c
			}
		}
		return 0
	default:
		// absent, null
		return 0
	}
}

func sortedKeys(obj ir.IRObject) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Matches implements the = operator: membership when left is a list,
// deep equality otherwise.
func Matches(left, right ir.IRValue) bool {
	if list, ok := left.(ir.IRArray); ok {
		return contains(list, right)
	}
	return ir.Equal(left, right)
}

func contains(list ir.IRArray, v ir.IRValue) bool {
	return slices.ContainsFunc(list, func(elem ir.IRValue) bool {
		return ir.Equal(elem, v)
	})
}
