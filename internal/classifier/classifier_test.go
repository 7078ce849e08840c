package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formcheck/internal/form"
)

func TestValueFor(t *testing.T) {
	table := NewTable(nil, "")

	assert.Equal(t, "test@example.com", table.ValueFor(form.Field{Name: "email"}))
	assert.Equal(t, "Test User", table.ValueFor(form.Field{Name: "your-name"}))
	assert.Equal(t, DefaultFallback, table.ValueFor(form.Field{Name: "company_size"}))
	assert.Equal(t, DefaultFallback, table.ValueFor(form.Field{Name: "Email"}), "lookup is exact")
	assert.NotEmpty(t, table.ValueFor(form.Field{}))
}

func TestOverrides(t *testing.T) {
	table := NewTable(map[string]string{"email": "qa@corp.test", "company": "Acme", "phone": ""}, "n/a")

	assert.Equal(t, "qa@corp.test", table.ValueFor(form.Field{Name: "email"}))
	assert.Equal(t, "Acme", table.ValueFor(form.Field{Name: "company"}))
	assert.Equal(t, "+1-202-555-0198", table.ValueFor(form.Field{Name: "phone"}), "empty override keeps default")
	assert.Equal(t, "n/a", table.ValueFor(form.Field{Name: "other"}))
	assert.Equal(t, "test@example.com", DefaultValues["email"], "defaults are not mutated")
}

type suggesterFunc func(ctx context.Context, fields []form.Field) (map[string]string, error)

func (f suggesterFunc) SuggestValues(ctx context.Context, fields []form.Field) (map[string]string, error) {
	return f(ctx, fields)
}

func keys(m *form.Mapping) []string {
	var out []string
	for p := m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

var contact = form.Form{Fields: []form.Field{
	{Name: "your-name", InputType: "text"},
	{Name: "_wpnonce", InputType: "hidden"},
	{Name: "company", InputType: "text"},
	{Name: "email", InputType: "email"},
	{Name: "plan", InputType: "radio"},
	{Name: "plan", InputType: "radio"},
	{Name: "", InputType: "text"},
	{Name: "send", InputType: "submit"},
}}

func TestBuildMappingWithoutSuggester(t *testing.T) {
	m, err := BuildMapping(context.Background(), NewTable(nil, ""), contact, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"your-name", "company", "email", "plan"}, keys(m))
	v, _ := m.Get("company")
	assert.Equal(t, DefaultFallback, v)
}

func TestBuildMappingAsksOnlyForMisses(t *testing.T) {
	var asked []string
	s := suggesterFunc(func(_ context.Context, fields []form.Field) (map[string]string, error) {
		for _, f := range fields {
			asked = append(asked, f.Name)
		}
		return map[string]string{"company": "Acme Corp", "email": "ignored@x.test"}, nil
	})

	m, err := BuildMapping(context.Background(), NewTable(nil, ""), contact, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"company", "plan"}, asked)

	company, _ := m.Get("company")
	assert.Equal(t, "Acme Corp", company)
	email, _ := m.Get("email")
	assert.Equal(t, "test@example.com", email)
	plan, _ := m.Get("plan")
	assert.Equal(t, DefaultFallback, plan)
}

func TestBuildMappingSuggesterFailure(t *testing.T) {
	s := suggesterFunc(func(context.Context, []form.Field) (map[string]string, error) {
		return nil, errors.New("rate limited")
	})
	m, err := BuildMapping(context.Background(), NewTable(nil, ""), contact, s)
	assert.EqualError(t, err, "rate limited")
	require.NotNil(t, m)
	assert.Equal(t, 4, m.Len())
}
