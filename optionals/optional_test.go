package optionals

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSomeAndNone(t *testing.T) {
	some := Some(42)
	assert.True(t, some.IsSome())
	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	none := None[int]()
	assert.True(t, none.IsNone())
	_, ok = none.Get()
	assert.False(t, ok)
}

func TestGetOrDefault(t *testing.T) {
	assert.Equal(t, "x", Some("x").GetOrDefault("y"))
	assert.Equal(t, "y", None[string]().GetOrDefault("y"))
}

func TestMap(t *testing.T) {
	doubled := Map(Some(21), func(v int) int { return v * 2 })
	assert.Equal(t, 42, doubled.GetOrDefault(0))
	assert.True(t, Map(None[int](), func(v int) int { return v }).IsNone())
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Some("hello"))
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(data))

	var opt Optional[string]
	require.NoError(t, json.Unmarshal(data, &opt))
	assert.Equal(t, "hello", opt.GetOrDefault(""))

	data, err = json.Marshal(None[string]())
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
