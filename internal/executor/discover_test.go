package executor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formcheck/internal/classifier"
	"github.com/v0xg/formcheck/internal/form"
	"github.com/v0xg/formcheck/internal/static"
	"github.com/v0xg/formcheck/internal/templates"
)

func TestDiscover(t *testing.T) {
	launcher := static.New(static.Options{Fetcher: static.Site{target: contactForm}})
	e := New(Deps{Launcher: launcher}, testOptions(t), nil)

	res, err := e.Discover(context.Background(), target, 0)
	require.NoError(t, err)
	require.Len(t, res.Forms, 1)
	assert.Equal(t, "form#contact", res.Forms[0].Selector)
	assert.Len(t, res.Forms[0].Fields, 4)

	_, err = e.Discover(context.Background(), "https://missing.example.com/", 0)
	assert.ErrorIs(t, err, ErrNavigation)
}

type failingSuggester struct{}

func (failingSuggester) SuggestValues(context.Context, []form.Field) (map[string]string, error) {
	return nil, errors.New("quota exceeded")
}

func TestLearnSavesTemplate(t *testing.T) {
	store, err := templates.NewStore(filepath.Join(t.TempDir(), "templates"))
	require.NoError(t, err)

	f := form.Form{Index: 1, Selector: "form#quote", Fields: []form.Field{
		{Name: "email", InputType: "email"},
		{Name: "company", InputType: "text"},
		{Name: "token", InputType: "hidden"},
	}}
	learned, err := Learn(context.Background(), store, classifier.NewTable(nil, ""), failingSuggester{}, target, f)
	require.NoError(t, err)
	assert.Equal(t, "quota exceeded", learned.SuggestError)
	assert.Equal(t, "a.example.com.json", filepath.Base(learned.Path))

	tmpl, ok, err := store.Load(target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "form#quote", tmpl.FormSelector)
	assert.Equal(t, 1, tmpl.FormIndex)
	v, _ := tmpl.Mapping.Get("company")
	assert.Equal(t, classifier.DefaultFallback, v)
	_, hidden := tmpl.Mapping.Get("token")
	assert.False(t, hidden)
}

func TestPickForm(t *testing.T) {
	forms := []form.Form{{Index: 0}, {Index: 1}}
	f, ok := PickForm(forms, 1)
	assert.True(t, ok)
	assert.Equal(t, 1, f.Index)
	f, ok = PickForm(forms, 7)
	assert.True(t, ok)
	assert.Equal(t, 0, f.Index)
	_, ok = PickForm(nil, 0)
	assert.False(t, ok)
}
