package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_NestedMapLike(t *testing.T) {
	in := map[any]any{
		"returns": map[any]any{
			"spendable": []map[string]any{{"outpoint": "aa:0", "value": 1000}},
			1:           true,
		},
	}

	out := Normalize(in)

	expected := map[string]any{
		"returns": map[string]any{
			"spendable": []any{map[string]any{"outpoint": "aa:0", "value": 1000}},
			"1":         true,
		},
	}
	assert.Equal(t, expected, out)
}

func TestNormalize_Primitives(t *testing.T) {
	assert.Equal(t, 5, Normalize(5))
	assert.Equal(t, "x", Normalize("x"))
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, []byte("raw"), Normalize([]byte("raw")))
}

func TestToSlice_LuaTable(t *testing.T) {
	table := map[string]any{"2": "b", "10": "c", "1": "a"}
	assert.Equal(t, []any{"a", "b", "c"}, ToSlice(table))
	assert.Equal(t, []any{}, ToSlice(map[string]any{}))
	assert.Equal(t, []any{}, ToSlice(nil))
	assert.Equal(t, []any{"x"}, ToSlice([]string{"x"}))
}

func TestUnwrap(t *testing.T) {
	assert.Equal(t, map[string]any{"a": 1}, Unwrap(map[string]any{"returns": map[string]any{"a": 1}}))
	assert.Equal(t, map[string]any{"a": 1}, Unwrap(map[string]any{"a": 1}))
}

func TestDecode(t *testing.T) {
	var out struct {
		Value uint64 `json:"value"`
		Name  string `json:"name"`
	}
	require.NoError(t, Decode(json.RawMessage(`{"value": 42, "name": "n"}`), &out))
	assert.Equal(t, uint64(42), out.Value)

	err := Decode(map[string]any{"value": "nope"}, &out)
	assert.ErrorIs(t, err, ErrMalformed)
}
