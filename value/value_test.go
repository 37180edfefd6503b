package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	t.Parallel()
	obj := NewObject("b", int64(1), "a", int64(2))
	obj.Set("c", int64(3))
	obj.Set("b", int64(4))

	assert.Equal(t, []string{"b", "a", "c"}, obj.Keys())
	v, ok := obj.Get("b")
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	assert.True(t, obj.Delete("a"))
	assert.False(t, obj.Delete("a"))
	assert.Equal(t, []string{"b", "c"}, obj.Keys())
	assert.Equal(t, 2, obj.Len())

	var nilObj *Object
	assert.Equal(t, 0, nilObj.Len())
	assert.Nil(t, nilObj.Keys())
}

func TestObjectJSON(t *testing.T) {
	t.Parallel()
	src := `{"z":1,"a":{"y":[1,2.5,"x"],"b":null},"m":true}`

	obj := new(Object)
	require.NoError(t, json.Unmarshal([]byte(src), obj))
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.JSONEq(t, src, string(data))
	assert.Equal(t, src, string(data))

	assert.Error(t, json.Unmarshal([]byte(`[1]`), obj))
}

func TestObjectToMap(t *testing.T) {
	t.Parallel()
	obj := NewObject("a", NewObject("b", []any{NewObject("c", int64(1))}))
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": []any{map[string]any{"c": int64(1)}}},
	}, obj.ToMap())
}

func TestSelect(t *testing.T) {
	t.Parallel()
	v, err := ParseJSON([]byte(`{"keys":[{"key":"foo"},{"key":"bar"}],"one":{"n":1}}`))
	require.NoError(t, err)

	testCases := []struct {
		path string
		want any
	}{
		{"$.keys[*].key", []any{"foo", "bar"}},
		{"$.one.n", int64(1)},
		{"$.missing", nil},
	}
	for _, testCase := range testCases {
		t.Run(testCase.path, func(t *testing.T) {
			got, err := Select(v, testCase.path)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}
