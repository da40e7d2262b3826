package plist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/restored-go/restored/restore/plist"
)

func TestDictAccessorsAbsentAndMismatch(t *testing.T) {
	d := plist.Dict{
		"Name":    "KernelCache",
		"Erase":   true,
		"Blob":    []byte{1, 2, 3},
		"Count":   int64(5),
		"Nested":  plist.Dict{"Inner": "v"},
		"List":    []any{"a", "b"},
		"WrongTy": 123,
	}

	s, ok := d.String("Name")
	assert.True(t, ok)
	assert.Equal(t, "KernelCache", s)

	_, ok = d.String("Missing")
	assert.False(t, ok)

	_, ok = d.String("WrongTy")
	assert.False(t, ok)

	b, ok := d.Bool("Erase")
	assert.True(t, ok)
	assert.True(t, b)

	data, ok := d.Data("Blob")
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)

	n, ok := d.Int("Count")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)

	nested, ok := d.Dict("Nested")
	assert.True(t, ok)
	v, ok := nested.String("Inner")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	arr, ok := d.Array("List")
	assert.True(t, ok)
	assert.Len(t, arr, 2)

	assert.True(t, d.Has("Name"))
	assert.False(t, d.Has("Nope"))
}

func TestParseNormalizesNestedMaps(t *testing.T) {
	xml, err := plist.ToXML(map[string]any{
		"Outer": map[string]any{"Inner": "value"},
	})
	assert.NoError(t, err)

	d, err := plist.Parse(xml)
	assert.NoError(t, err)

	nested, ok := d.Dict("Outer")
	assert.True(t, ok)
	v, ok := nested.String("Inner")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}
