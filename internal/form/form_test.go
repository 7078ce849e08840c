package form

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldSelector(t *testing.T) {
	tests := []struct {
		name                  string
		fname, id, tag, class string
		want                  string
	}{
		{"name wins", "email", "e1", "input", "x", `[name="email"]`},
		{"id when no name", "", "msg", "textarea", "", "#msg"},
		{"id needing quotes", "", "1st", "input", "", `[id="1st"]`},
		{"classes", "", "", "INPUT", "form-control big 9bad wide", "input.form-control.big"},
		{"bare tag", "", "", "select", "", "select"},
		{"quotes escaped", `a"b`, "", "input", "", `[name="a\"b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FieldSelector(tt.fname, tt.id, tt.tag, tt.class))
		})
	}
}

func TestFormSelector(t *testing.T) {
	assert.Equal(t, "form#contact", FormSelector("contact", "wpcf7-form", 1))
	assert.Equal(t, "form.wpcf7-form", FormSelector("", "wpcf7-form init", 1))
	assert.Equal(t, "form:nth-of-type(3)", FormSelector("", "", 3))
	assert.Equal(t, "form:nth-of-type(2)", FormSelector("", "1bad", 2))
}

func TestResolveType(t *testing.T) {
	assert.Equal(t, "email", ResolveType("EMAIL", "input"))
	assert.Equal(t, "textarea", ResolveType("", "TEXTAREA"))
	assert.Equal(t, "select", ResolveType("", "select"))
	assert.Equal(t, "text", ResolveType("", "input"))
}

func TestFillable(t *testing.T) {
	assert.True(t, Field{Name: "email", InputType: "email"}.Fillable())
	assert.False(t, Field{Name: "", InputType: "text"}.Fillable())
	assert.False(t, Field{Name: "_token", InputType: "hidden"}.Fillable())
	assert.False(t, Field{Name: "go", InputType: "submit"}.Fillable())
}

func TestMappingKeepsInsertionOrder(t *testing.T) {
	m := NewMapping()
	m.Set("zeta", "1")
	m.Set("alpha", "2")
	m.Set("mid", "3")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"1","alpha":"2","mid":"3"}`, string(data))

	back := NewMapping()
	require.NoError(t, json.Unmarshal(data, back))
	var keys []string
	for p := back.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)
}
