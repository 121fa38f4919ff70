package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValue(t *testing.T) {
	values := []IRValue{
		IRNull{},
		IRBool(true),
		IRNumber(-12.5),
		IRString("Zef"),
		IRBytes{1, 2, 3},
		IRArray{IRString("John"), IRString("Jane")},
		IRObject{
			"name":    IRString("Frank"),
			"parents": IRArray{IRString("John"), IRString("Jane")},
			"address": IRObject{"street": IRString("123 Main St"), "city": IRString("San Francisco")},
			"empty":   IRObject{},
			"raw":     IRBytes{},
		},
	}

	for _, v := range values {
		t.Run(KindName(v), func(t *testing.T) {
			data, err := EncodeValue(v)
			require.NoError(t, err)

			back, err := DecodeValue(data)
			require.NoError(t, err)
			assert.True(t, Equal(v, back), "round trip changed %s", data)
		})
	}
}

func TestEncodeValueKeepsStringsVerbatim(t *testing.T) {
	decomposed := IRString("café")

	data, err := EncodeValue(decomposed)
	require.NoError(t, err)

	back, err := DecodeValue(data)
	require.NoError(t, err)
	assert.Equal(t, decomposed, back)
}

func TestEncodeValueRejectsAbsent(t *testing.T) {
	_, err := EncodeValue(nil)
	require.Error(t, err)
}

func TestDecodeValueBytesForm(t *testing.T) {
	v, err := DecodeValue([]byte(`{"$bytes":"AQID"}`))
	require.NoError(t, err)
	assert.Equal(t, IRBytes{1, 2, 3}, v)

	// Additional keys make it an ordinary object.
	v, err = DecodeValue([]byte(`{"$bytes":"AQID","x":1}`))
	require.NoError(t, err)
	assert.IsType(t, IRObject{}, v)

	_, err = DecodeValue([]byte(`{"$bytes":"not base64!"}`))
	require.Error(t, err)
}

func TestDecodeValueInvalidJSON(t *testing.T) {
	_, err := DecodeValue([]byte(`{"a":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode value")
}
