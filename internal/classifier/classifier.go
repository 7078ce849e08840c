// Package classifier assigns synthetic values to form fields.
//
// Classification is an exact match of the field name against a table of
// conventional contact-form names. A miss yields the fallback value, never an
// empty string, so unconventional fields are still filled.
package classifier

import (
	"context"
	"maps"

	"github.com/v0xg/formcheck/internal/form"
)

// DefaultFallback is returned for names the table does not know.
const DefaultFallback = "Test Value"

// DefaultValues is the built-in archetype table.
var DefaultValues = map[string]string{
	"first_name": "Test User",
	"your-name":  "Test User",
	"name":       "Test User",
	"email":      "test@example.com",
	"your-email": "test@example.com",
	"phone":      "+1-202-555-0198",
	"message":    "Automated message",
}

// Table is an immutable name → value lookup with a fallback.
type Table struct {
	values   map[string]string
	fallback string
}

// NewTable layers overrides on top of DefaultValues. An empty fallback keeps
// DefaultFallback.
func NewTable(overrides map[string]string, fallback string) *Table {
	values := maps.Clone(DefaultValues)
	for k, v := range overrides {
		if v != "" {
			values[k] = v
		}
	}
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Table{values: values, fallback: fallback}
}

// Lookup reports the table entry for name, if any.
func (t *Table) Lookup(name string) (string, bool) {
	v, ok := t.values[name]
	return v, ok
}

// ValueFor returns the value to fill into f.
func (t *Table) ValueFor(f form.Field) string {
	if v, ok := t.values[f.Name]; ok {
		return v
	}
	return t.fallback
}

// Suggester proposes values for fields the table does not know.
// Implementations may return values for a subset of the fields.
type Suggester interface {
	SuggestValues(ctx context.Context, fields []form.Field) (map[string]string, error)
}

// BuildMapping produces a template mapping for every fillable named field of
// f, in field order. Table hits are used as is; misses go to s when it is
// non-nil and otherwise take the fallback. A suggester error is returned
// alongside a complete mapping built without suggestions.
func BuildMapping(ctx context.Context, t *Table, f form.Form, s Suggester) (*form.Mapping, error) {
	m := form.NewMapping()
	var misses []form.Field
	for _, field := range f.Fields {
		if !field.Fillable() {
			continue
		}
		if _, seen := m.Get(field.Name); seen {
			continue
		}
		v, ok := t.Lookup(field.Name)
		if !ok {
			misses = append(misses, field)
			v = t.fallback
		}
		m.Set(field.Name, v)
	}

	if s == nil || len(misses) == 0 {
		return m, nil
	}
	suggested, err := s.SuggestValues(ctx, misses)
	if err != nil {
		return m, err
	}
	for _, field := range misses {
		if v := suggested[field.Name]; v != "" {
			m.Set(field.Name, v)
		}
	}
	return m, nil
}
