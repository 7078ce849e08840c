package static

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formcheck/internal/page"
)

const contactPage = `<html><body>
<form id="contact">
  <label for="n">Your name</label><input id="n" name="name">
  <input name="hp" style="display: none">
  <textarea name="message"></textarea>
  <select name="topic"><option value="a">Sales</option><option value="b">Support</option></select>
  <button>Send</button>
</form>
<iframe src="/embed"></iframe>
<iframe src="https://other.example.net/widget"></iframe>
</body></html>`

func loadPage(t *testing.T, opts Options) page.Page {
	t.Helper()
	if opts.Fetcher == nil {
		opts.Fetcher = Site{
			"https://a.example.com/contact": contactPage,
			"https://a.example.com/embed":   `<form><input name="q"></form>`,
		}
	}
	pg, err := New(opts).NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, pg.Navigate(context.Background(), "https://a.example.com/contact", page.WaitNetworkIdle, time.Second))
	return pg
}

func TestNavigateLoadsFrames(t *testing.T) {
	ctx := context.Background()
	pg := loadPage(t, Options{})

	frames, err := pg.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, "https://a.example.com/embed", frames[0].URL())
	forms, err := frames[0].QuerySelectorAll(ctx, "form")
	require.NoError(t, err)
	assert.Len(t, forms, 1)

	_, err = frames[1].QuerySelectorAll(ctx, "form")
	assert.ErrorContains(t, err, "inaccessible")
}

func TestFillAndVisibility(t *testing.T) {
	ctx := context.Background()
	pg := loadPage(t, Options{})

	hp, err := pg.QuerySelector(ctx, `[name="hp"]`)
	require.NoError(t, err)
	require.NotNil(t, hp)
	visible, err := hp.Visible(ctx)
	require.NoError(t, err)
	assert.False(t, visible)
	assert.Error(t, hp.Fill(ctx, "x"))
	require.NoError(t, hp.SetValue(ctx, "x"))
	v, _ := hp.Attribute(ctx, "value")
	assert.Equal(t, "x", v)

	topic, err := pg.QuerySelector(ctx, `[name="topic"]`)
	require.NoError(t, err)
	assert.NoError(t, topic.Fill(ctx, "Support"))
	assert.Error(t, topic.Fill(ctx, "Billing"))

	name, err := pg.QuerySelector(ctx, "#n")
	require.NoError(t, err)
	label, err := pg.QuerySelector(ctx, `label[for="n"]`)
	require.NoError(t, err)
	text, _ := label.Text(ctx)
	assert.Equal(t, "Your name", text)
	require.NoError(t, name.Fill(ctx, "Test User"))

	missing, err := pg.QuerySelector(ctx, "#nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = pg.QuerySelector(ctx, "[[")
	assert.Error(t, err)
}

func TestClickSubmitsThroughHook(t *testing.T) {
	ctx := context.Background()
	var submitted string
	pg := loadPage(t, Options{OnSubmit: func(doc *goquery.Document, form *goquery.Selection) {
		submitted = form.AttrOr("id", "")
		doc.Find("body").AppendHtml("<p>Thank you for your message.</p>")
	}})

	btn, err := pg.QuerySelector(ctx, "form button:not([type])")
	require.NoError(t, err)
	require.NotNil(t, btn)
	require.NoError(t, btn.Click(ctx))
	assert.Equal(t, "contact", submitted)

	text, err := pg.Text(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Thank you")
}

func TestScreenshotWritesPNG(t *testing.T) {
	pg := loadPage(t, Options{Width: 20, Height: 10})
	path := filepath.Join(t.TempDir(), "shots", "a.png")
	got, err := pg.Screenshot(context.Background(), path, true)
	require.NoError(t, err)
	assert.FileExists(t, got)
}

func TestUnloadedPage(t *testing.T) {
	pg, err := New(Options{Fetcher: Site{}}).NewPage(context.Background())
	require.NoError(t, err)
	_, err = pg.Content(context.Background())
	assert.Error(t, err)
	assert.Error(t, pg.Navigate(context.Background(), "https://missing.example.com/", page.WaitNetworkIdle, time.Second))
}
