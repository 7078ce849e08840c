package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formcheck/internal/page"
	"github.com/v0xg/formcheck/internal/static"
)

const root = "https://a.example.com/contact"

func open(t *testing.T, site static.Site) page.Page {
	t.Helper()
	pg, err := static.New(static.Options{Fetcher: site}).NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, pg.Navigate(context.Background(), root, page.WaitNetworkIdle, time.Second))
	return pg
}

func TestDiscoverTopLevelThenFrames(t *testing.T) {
	pg := open(t, static.Site{
		root: `<html><body>
<form id="contact" action="/send" method="POST" class="wpcf7-form">
  <label for="your-name">Your Name</label>
  <input id="your-name" name="your-name">
  <label>Email <input type="EMAIL" name="email" placeholder="you@example.com"></label>
  <textarea name="message" aria-label="Message"></textarea>
  <select id="topic"><option>Sales</option></select>
  <input type="hidden" name="_token" value="abc">
  <input class="extra wide">
</form>
<form class="newsletter signup"><input name="subscribe" title="Subscribe"></form>
<iframe src="/embedded"></iframe>
</body></html>`,
		"https://a.example.com/embedded": `<form><input name="q"></form>`,
	})

	res := New(Options{}, nil).Discover(context.Background(), pg)
	require.Len(t, res.Forms, 3)
	assert.Empty(t, res.Skips)

	first := res.Forms[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "form#contact", first.Selector)
	assert.Equal(t, "/send", first.Action)
	assert.Equal(t, "post", first.Method)
	assert.True(t, first.Visible)
	assert.False(t, first.InIframe)
	require.Len(t, first.Fields, 6)

	name := first.Fields[0]
	assert.Equal(t, "your-name", name.Name)
	assert.Equal(t, "text", name.InputType)
	assert.Equal(t, "Your Name", name.Label)
	assert.Equal(t, `[name="your-name"]`, name.Selector)

	email := first.Fields[1]
	assert.Equal(t, "email", email.InputType)
	assert.Equal(t, "you@example.com", email.Placeholder)
	assert.Equal(t, "Email", email.Label)

	msg := first.Fields[2]
	assert.Equal(t, "textarea", msg.InputType)
	assert.Equal(t, "Message", msg.AriaLabel)

	topic := first.Fields[3]
	assert.Equal(t, "topic", topic.Name, "name falls back to id")
	assert.Equal(t, "select", topic.InputType)
	assert.Equal(t, "#topic", topic.Selector)

	hidden := first.Fields[4]
	assert.Equal(t, "hidden", hidden.InputType)
	assert.False(t, hidden.Visible)

	anon := first.Fields[5]
	assert.Empty(t, anon.Name)
	assert.Equal(t, "input.extra.wide", anon.Selector)

	second := res.Forms[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, "form.newsletter", second.Selector)
	assert.Equal(t, "get", second.Method)
	assert.Equal(t, "Subscribe", second.Fields[0].AriaLabel)

	framed := res.Forms[2]
	assert.Equal(t, 2, framed.Index)
	assert.True(t, framed.InIframe)
	assert.Equal(t, "form:nth-of-type(1)", framed.Selector)
}

func TestDiscoverSurvivesInaccessibleFrame(t *testing.T) {
	pg := open(t, static.Site{
		root: `<form><input name="email"></form>
<iframe src="https://widgets.other.net/form"></iframe>
<iframe src="/ok"></iframe>`,
		"https://a.example.com/ok": `<form><input name="name"></form>`,
	})

	res := New(Options{}, nil).Discover(context.Background(), pg)
	require.Len(t, res.Forms, 2)
	assert.False(t, res.Forms[0].InIframe)
	assert.True(t, res.Forms[1].InIframe)
	assert.Equal(t, 1, res.Forms[1].Index)

	require.Len(t, res.Skips, 1)
	assert.Contains(t, res.Skips[0].Scope, "widgets.other.net")
}

func TestDiscoverNoForms(t *testing.T) {
	pg := open(t, static.Site{root: `<p>nothing here</p>`})
	res := New(Options{}, nil).Discover(context.Background(), pg)
	assert.Empty(t, res.Forms)
	assert.NotNil(t, res.Forms)
}

func TestPreviewIsBounded(t *testing.T) {
	pg := open(t, static.Site{root: `<form>` + strings.Repeat("<p>x</p>", 100) + `</form>`})
	res := New(Options{PreviewLimit: 20}, nil).Discover(context.Background(), pg)
	require.Len(t, res.Forms, 1)
	assert.Len(t, []rune(res.Forms[0].PreviewHTML), 20)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	pg := open(t, static.Site{
		root:                      `<form id="a"></form><iframe src="/f"></iframe>`,
		"https://a.example.com/f": `<form id="b"><input name="x"></form>`,
	})
	d := New(Options{}, nil)
	handles, _ := d.Handles(ctx, pg)
	require.Len(t, handles, 2)

	h, ok := d.Lookup(ctx, handles, "form#a", 0)
	require.True(t, ok)
	assert.False(t, h.InIframe)
	assert.Equal(t, 0, h.Index)

	h, ok = d.Lookup(ctx, handles, "form#b", 0)
	require.True(t, ok, "a unique match wins over the preferred index")
	assert.True(t, h.InIframe)
	assert.Equal(t, 1, h.Index)
	assert.Equal(t, "https://a.example.com/f", h.FrameURL)

	_, ok = d.Lookup(ctx, handles, "form#c", 0)
	assert.False(t, ok)

	_, ok = d.Lookup(ctx, handles, "form[", 0)
	assert.False(t, ok, "an invalid selector matches nothing")
}

func TestLookupAmbiguousSelector(t *testing.T) {
	ctx := context.Background()
	pg := open(t, static.Site{
		root: `<form class="wpcf7-form"><input name="newsletter_email"></form>
<form class="wpcf7-form"><input name="your-name"></form>
<iframe src="/f"></iframe>`,
		"https://a.example.com/f": `<form><input name="q"></form>`,
	})
	d := New(Options{}, nil)
	handles, _ := d.Handles(ctx, pg)
	require.Len(t, handles, 3)

	h, ok := d.Lookup(ctx, handles, "form.wpcf7-form", 1)
	require.True(t, ok)
	assert.Equal(t, 1, h.Index)
	name, err := h.Element.QuerySelector(ctx, `[name="your-name"]`)
	require.NoError(t, err)
	assert.NotNil(t, name)

	_, ok = d.Lookup(ctx, handles, "form.wpcf7-form", 2)
	assert.False(t, ok, "the preferred form does not match the selector")

	// the first form of the page and the first form of the frame
	h, ok = d.Lookup(ctx, handles, "form:nth-of-type(1)", 2)
	require.True(t, ok)
	assert.True(t, h.InIframe)

	_, ok = d.Lookup(ctx, handles, "form:nth-of-type(1)", 1)
	assert.False(t, ok)
}

// brokenElement fails every read.
type brokenElement struct{ page.Element }

func (brokenElement) TagName(context.Context) (string, error) {
	return "", errors.New("node is detached")
}

func (brokenElement) Attribute(context.Context, string) (string, error) {
	return "", errors.New("node is detached")
}

type stubForm struct {
	page.Element
	fields []page.Element
}

func (s stubForm) QuerySelectorAll(context.Context, string) ([]page.Element, error) {
	return s.fields, nil
}

func TestInspectFieldsSkipsUnreadableElements(t *testing.T) {
	pg := open(t, static.Site{root: `<form><input name="name"></form>`})
	good, err := pg.QuerySelector(context.Background(), "input")
	require.NoError(t, err)

	f := stubForm{fields: []page.Element{brokenElement{}, good}}
	fields, skips := New(Options{}, nil).InspectFields(context.Background(), pg, f)
	require.Len(t, fields, 1)
	assert.Equal(t, "name", fields[0].Name)
	require.Len(t, skips, 1)
	assert.Equal(t, "field[0]", skips[0].Scope)
	assert.Contains(t, skips[0].Reason, "detached")
}
