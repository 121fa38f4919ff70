package ir

import (
	"bytes"
	"fmt"
	"strings"
)

// Key is a compound storage key: an ordered sequence of string segments.
// Keys order lexicographically over their segments, comparing each segment
// by bytes.
type Key []string

// Entry pairs a key with its stored value.
type Entry struct {
	Key   Key     `json:"key"`
	Value IRValue `json:"value"`
}

// Compare returns -1, 0 or 1 comparing k with other segment by segment.
// A key sorts before every longer key it is a prefix of.
func (k Key) Compare(other Key) int {
	for i := 0; i < len(k) && i < len(other); i++ {
		if c := strings.Compare(k[i], other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(other):
		return -1
	case len(k) > len(other):
		return 1
	default:
		return 0
	}
}

// HasPrefix reports whether prefix's segments equal the leading segments of k.
// The empty key is a prefix of every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

// Concat returns a new key made of k's segments followed by suffix's.
func (k Key) Concat(suffix Key) Key {
	out := make(Key, 0, len(k)+len(suffix))
	out = append(out, k...)
	return append(out, suffix...)
}

// String joins the segments with "/".
func (k Key) String() string {
	return strings.Join(k, "/")
}

// ParseKey splits a "/"-separated key. Empty segments are rejected.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return nil, fmt.Errorf("empty key")
	}
	parts := strings.Split(s, "/")
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("key %q: segment %d is empty", s, i)
		}
	}
	return Key(parts), nil
}

// Key encoding.
//
// Each segment is written with 0x00 escaped as 0x00 0xFF and is followed by
// the terminator 0x00 0x01. Two properties follow:
//   - bytes.Compare over encodings agrees with Key.Compare
//   - the encoding of a prefix key is a byte prefix of the encoding of every
//     key it prefixes
const (
	keyEscape     = 0x00
	keyEscapedNul = 0xFF
	keyTerminator = 0x01
)

// EncodeKey produces the binary-comparable form of k.
func EncodeKey(k Key) []byte {
	size := 0
	for _, seg := range k {
		size += len(seg) + 2
	}
	out := make([]byte, 0, size)
	for _, seg := range k {
		for i := 0; i < len(seg); i++ {
			if seg[i] == keyEscape {
				out = append(out, keyEscape, keyEscapedNul)
				continue
			}
			out = append(out, seg[i])
		}
		out = append(out, keyEscape, keyTerminator)
	}
	return out
}

// DecodeKey is the inverse of EncodeKey.
func DecodeKey(data []byte) (Key, error) {
	var (
		key Key
		seg bytes.Buffer
	)
	for i := 0; i < len(data); i++ {
		if data[i] != keyEscape {
			seg.WriteByte(data[i])
			continue
		}
		if i+1 >= len(data) {
			return nil, fmt.Errorf("decode key: truncated escape at offset %d", i)
		}
		i++
		switch data[i] {
		case keyEscapedNul:
			seg.WriteByte(keyEscape)
		case keyTerminator:
			key = append(key, seg.String())
			seg.Reset()
		default:
			return nil, fmt.Errorf("decode key: invalid escape 0x%02x at offset %d", data[i], i)
		}
	}
	if seg.Len() > 0 {
		return nil, fmt.Errorf("decode key: unterminated segment")
	}
	return key, nil
}

// PrefixUpperBound returns the smallest encoding greater than every encoding
// that starts with EncodeKey(prefix), for use as an exclusive range end.
// It returns nil for the empty prefix (the range is unbounded).
func PrefixUpperBound(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	enc := EncodeKey(prefix)
	// The encoding always ends in the terminator byte, which is below 0xFF.
	enc[len(enc)-1]++
	return enc
}
