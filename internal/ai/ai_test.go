package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/form"
)

type fakeBackend struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeBackend) complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func suggester(b completer) *Suggester {
	return &Suggester{name: "fake", backend: b, timeout: defaultTimeout, log: zap.NewNop()}
}

func TestParseValuesJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  map[string]string
	}{
		{
			name:  "bare object",
			reply: `{"company": "Example Industries"}`,
			want:  map[string]string{"company": "Example Industries"},
		},
		{
			name:  "fenced with prose",
			reply: "Here you go:\n```json\n{\"job_title\": \"QA Engineer\", \"note\": \"uses {braces}\"}\n```\nDone.",
			want:  map[string]string{"job_title": "QA Engineer", "note": "uses {braces}"},
		},
		{
			name:  "escaped quote inside value",
			reply: `Sure. {"quote": "say \"hi\" }"} trailing`,
			want:  map[string]string{"quote": `say "hi" }`},
		},
		{
			name:  "braces in prose before the object",
			reply: `Fields like {this} are odd: {"budget": 1500, "consent": true, "tags": ["a"], "x": null}`,
			want:  map[string]string{"budget": "1500", "consent": "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseValuesJSON(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValuesJSONWithoutObject(t *testing.T) {
	for _, reply := range []string{"I cannot help with that.", `{"a": "b"`} {
		_, err := parseValuesJSON(reply)
		assert.ErrorIs(t, err, errNoObject, reply)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	prompt, err := buildUserPrompt([]form.Field{
		{Name: "company", InputType: "text", Label: "Company name"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "Fields:\n"))
	assert.Contains(t, prompt, `"name": "company"`)
	assert.Contains(t, prompt, `"label": "Company name"`)
	assert.NotContains(t, prompt, "placeholder")
}

func TestSuggestValuesKeepsOnlyRequestedNames(t *testing.T) {
	b := &fakeBackend{reply: `{"company": " Example Industries ", "job_title": "", "extra": "ignored"}`}
	got, err := suggester(b).SuggestValues(context.Background(), []form.Field{
		{Name: "company", InputType: "text"},
		{Name: "job_title", InputType: "text"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"company": "Example Industries"}, got)
	assert.Equal(t, systemPrompt, b.system)
	assert.Contains(t, b.user, `"name": "job_title"`)
}

func TestSuggestValuesErrors(t *testing.T) {
	fields := []form.Field{{Name: "company"}}

	_, err := suggester(&fakeBackend{err: errors.New("429 rate limited")}).SuggestValues(context.Background(), fields)
	assert.ErrorContains(t, err, "fake: 429 rate limited")

	_, err = suggester(&fakeBackend{reply: "no idea"}).SuggestValues(context.Background(), fields)
	assert.ErrorIs(t, err, errNoObject)
}

func TestSuggestValuesNoFields(t *testing.T) {
	b := &fakeBackend{err: errors.New("must not be called")}
	got, err := suggester(b).SuggestValues(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, b.user)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Options{Provider: "llama"}, nil)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(Options{Provider: "claude"}, nil)
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY")
	_, err = New(Options{Provider: "openai"}, nil)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestNewWithConfiguredKey(t *testing.T) {
	s, err := New(Options{Provider: "Anthropic", APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude", s.name)
	assert.Equal(t, defaultTimeout, s.timeout)
}
