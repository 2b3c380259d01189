package bencode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckMapPath(t *testing.T) {
	v, err := FromAny(map[string]any{
		"foo": "bar",
		"bar": map[string]any{
			"baz": "foobar",
		},
	})
	require.NoError(t, err)
	m := v.(*Dict)
	assert.True(t, CheckMapPath(m, "foo"))
	assert.False(t, CheckMapPath(m, "baz"))
	assert.True(t, CheckMapPath(m, "bar"))
	assert.True(t, CheckMapPath(m, "bar.baz"))
	assert.False(t, CheckMapPath(m, "bar.foo"))
	assert.False(t, CheckMapPath(m, "foo.bar"))
}

func TestGetters(t *testing.T) {
	v, err := FromAny(map[string]any{
		"info": map[string]any{
			"name":   "sample.txt",
			"length": 92063,
		},
	})
	require.NoError(t, err)
	m := v.(*Dict)

	name, ok := GetString(m, "info.name")
	assert.True(t, ok)
	assert.Equal(t, "sample.txt", name)

	_, ok = GetString(m, "info.length")
	assert.False(t, ok)

	length, ok := GetInt(m, "info.length")
	assert.True(t, ok)
	assert.Equal(t, int64(92063), length)

	b, ok := GetBytes(m, "info.name")
	assert.True(t, ok)
	assert.Equal(t, []byte("sample.txt"), b)

	info, ok := GetDict(m, "info")
	assert.True(t, ok)
	assert.Equal(t, 2, info.Len())

	_, ok = GetDict(m, "missing")
	assert.False(t, ok)
}
