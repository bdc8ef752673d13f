package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionSparse(t *testing.T) {
	var missing *int
	p := Projection{
		{"name", "x"},
		{"empty", ""},
		{"nil", nil},
		{"nil_ptr", missing},
		{"list", []string{}},
		{"zero", 0},
		{"flag", false},
		{"data", map[string]interface{}{"keep": 1, "drop": ""}},
	}

	sparse := p.Sparse()
	assert.Equal(t, []string{"name", "zero", "flag", "data"}, sparse.Keys())
	data, _ := sparse.Get("data")
	assert.Equal(t, map[string]interface{}{"keep": 1}, data)
}

func TestProjectionMarshalKeepsOrder(t *testing.T) {
	p := Projection{{"b", 1}, {"a", "<tag>"}}
	out, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":"<tag>"}`, string(out))
}

func TestRenderNil(t *testing.T) {
	var f *ContextFlow
	assert.Equal(t, "", Render(f))
}

func TestRenderIndent(t *testing.T) {
	loc, err := NewLocation(Location{Country: "DE", UUID: "loc-1"})
	require.NoError(t, err)
	assert.Contains(t, loc.String(), "\n    \"country\": \"DE\"")
}
