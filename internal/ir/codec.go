package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeValue serializes a value for storage by a key-value backend.
// The encoding is JSON with sorted object keys; strings are kept verbatim
// and byte sequences use the {"$bytes":"<base64>"} form.
func EncodeValue(v IRValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, false); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeValue is the inverse of EncodeValue.
// Numbers are read through json.Number so integers above 2^53 keep the
// nearest float64 rather than failing. An object whose only key is "$bytes"
// with a string value decodes as IRBytes.
func DecodeValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	v, err := fromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// UnmarshalJSONValue parses user-supplied JSON (CLI arguments, fixtures)
// into an IRValue using the same rules as DecodeValue.
func UnmarshalJSONValue(data []byte) (IRValue, error) {
	return DecodeValue(data)
}

// fromJSON converts encoding/json output into IRValue, recognizing the
// bytes form.
func fromJSON(raw any) (IRValue, error) {
	switch val := raw.(type) {
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		if len(val) == 1 {
			if enc, ok := val[bytesKey].(string); ok {
				data, err := base64.StdEncoding.DecodeString(enc)
				if err != nil {
					return nil, fmt.Errorf("bytes: %w", err)
				}
				return IRBytes(data), nil
			}
		}
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return FromGo(val)
	}
}
