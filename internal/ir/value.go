package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
)

// IRValue is a sealed interface representing a stored or computed value.
// Only IRNull, IRBool, IRNumber, IRString, IRBytes, IRArray, and IRObject
// implement this.
//
// The nil IRValue is the absent-marker: it is what an attribute lookup
// returns for a missing attribute. IRObject never stores a nil value.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a JSON null value.
// Using an explicit type keeps null distinct from absent.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRNumber represents a numeric value.
// All numbers are float64, matching the expression language's single
// numeric type.
type IRNumber float64

func (IRNumber) irValue() {}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRBytes represents an opaque byte sequence.
type IRBytes []byte

func (IRBytes) irValue() {}

// IRArray represents an ordered list of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a string-keyed mapping of IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IsAbsent reports whether v is the absent-marker.
func IsAbsent(v IRValue) bool {
	return v == nil
}

// KindName returns a short human-readable name of v's type for error messages.
func KindName(v IRValue) string {
	switch v.(type) {
	case nil:
		return "absent"
	case IRNull:
		return "null"
	case IRBool:
		return "boolean"
	case IRNumber:
		return "number"
	case IRString:
		return "string"
	case IRBytes:
		return "bytes"
	case IRArray:
		return "list"
	case IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IRPair represents a key-value pair for IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is a shorthand for IRPair for ergonomic construction.
// Example: NewIRObjectFromPairs(O("name", IRString("Peter")), O("age", IRNumber(42)))
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// NewIRObjectFromPairs creates an IRObject from key-value pairs.
// Pairs with an absent value are skipped.
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		if p.Value == nil {
			continue
		}
		obj[p.Key] = p.Value
	}
	return obj
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// Clone returns a deep copy of v. Scalars are returned as-is; bytes, lists
// and objects are copied recursively so the result shares no memory with v.
func Clone(v IRValue) IRValue {
	switch val := v.(type) {
	case IRBytes:
		return IRBytes(bytes.Clone(val))
	case IRArray:
		if val == nil {
			return IRArray(nil)
		}
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case IRObject:
		if val == nil {
			return IRObject(nil)
		}
		out := make(IRObject, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// Equal reports deep structural equality of two values.
// Lists compare element-wise, objects key-wise, bytes byte-wise and
// scalars by value. Two absent values are equal.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case IRNull:
		_, ok := b.(IRNull)
		return ok
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRNumber:
		bv, ok := b.(IRNumber)
		return ok && av == bv
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRBytes:
		bv, ok := b.(IRBytes)
		return ok && bytes.Equal(av, bv)
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, exists := bv[k]
			if !exists || !Equal(elem, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromGo converts a Go value produced by a JSON, YAML or CUE decoder into an
// IRValue. Integers of any width, floats and json.Number become IRNumber;
// []byte becomes IRBytes; nil becomes IRNull.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case []byte:
		return IRBytes(bytes.Clone(val)), nil
	case int:
		return IRNumber(val), nil
	case int32:
		return IRNumber(val), nil
	case int64:
		return IRNumber(val), nil
	case uint:
		return IRNumber(val), nil
	case uint32:
		return IRNumber(val), nil
	case uint64:
		return IRNumber(val), nil
	case float32:
		return IRNumber(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite number %v", val)
		}
		return IRNumber(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return IRNumber(f), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	case map[any]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", k)
			}
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", ks, err)
			}
			obj[ks] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts an IRValue into plain Go data (the inverse of FromGo).
// Absent converts to nil, as does IRNull.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRBool:
		return bool(val)
	case IRNumber:
		return float64(val)
	case IRString:
		return string(val)
	case IRBytes:
		return []byte(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}
