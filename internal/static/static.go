// Package static implements the page capability over fetched markup parsed
// with goquery. No scripts run: navigation is a single fetch, fills edit the
// parsed tree, and submission is delegated to an optional hook. Screenshots
// are blank frames of the configured viewport size.
package static

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/v0xg/formcheck/internal/page"
)

// SubmitHook observes a submission. doc is the main document; form is the
// submitted form, possibly inside a frame document.
type SubmitHook func(doc *goquery.Document, form *goquery.Selection)

// Options configures the static driver.
type Options struct {
	Fetcher  Fetcher
	OnSubmit SubmitHook
	Width    int
	Height   int
}

// Launcher creates independent static pages.
type Launcher struct {
	opts Options
}

// New returns a Launcher. A nil Fetcher fetches over HTTP.
func New(opts Options) *Launcher {
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher("")
	}
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 900
	}
	return &Launcher{opts: opts}
}

// NewPage implements page.Launcher.
func (l *Launcher) NewPage(ctx context.Context) (page.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Page{opts: l.opts}, nil
}

var errNotLoaded = errors.New("page not loaded")

// Page is a parsed document plus its parsed frames.
type Page struct {
	opts   Options
	url    string
	doc    *goquery.Document
	frames []*Frame
	closed bool
}

// Navigate fetches and parses url, then loads every iframe it references.
// The wait strategy has no meaning without script execution.
func (p *Page) Navigate(ctx context.Context, rawURL string, _ page.WaitStrategy, timeout time.Duration) error {
	if p.closed {
		return errors.New("page closed")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	markup, err := p.opts.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	p.url = rawURL
	p.doc = doc
	p.frames = p.loadFrames(ctx, rawURL, doc)
	return nil
}

func (p *Page) loadFrames(ctx context.Context, base string, doc *goquery.Document) []*Frame {
	var frames []*Frame
	baseURL, _ := url.Parse(base)
	doc.Find("iframe, frame").Each(func(_ int, s *goquery.Selection) {
		if srcdoc, ok := s.Attr("srcdoc"); ok {
			frames = append(frames, newFrame(p, "about:srcdoc", srcdoc, nil))
			return
		}
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		target := src
		if baseURL != nil {
			if ref, err := url.Parse(src); err == nil {
				target = baseURL.ResolveReference(ref).String()
			}
		}
		markup, err := p.opts.Fetcher.Fetch(ctx, target)
		frames = append(frames, newFrame(p, target, markup, err))
	})
	return frames
}

func (p *Page) scope() (*docScope, error) {
	if p.doc == nil {
		return nil, errNotLoaded
	}
	return &docScope{page: p, doc: p.doc}, nil
}

// QuerySelector implements page.Scope.
func (p *Page) QuerySelector(ctx context.Context, selector string) (page.Element, error) {
	s, err := p.scope()
	if err != nil {
		return nil, err
	}
	return s.QuerySelector(ctx, selector)
}

// QuerySelectorAll implements page.Scope.
func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]page.Element, error) {
	s, err := p.scope()
	if err != nil {
		return nil, err
	}
	return s.QuerySelectorAll(ctx, selector)
}

// Text implements page.Scope.
func (p *Page) Text(ctx context.Context) (string, error) {
	s, err := p.scope()
	if err != nil {
		return "", err
	}
	return s.Text(ctx)
}

// Frames implements page.Page.
func (p *Page) Frames(_ context.Context) ([]page.Frame, error) {
	if p.doc == nil {
		return nil, errNotLoaded
	}
	out := make([]page.Frame, len(p.frames))
	for i, f := range p.frames {
		out[i] = f
	}
	return out, nil
}

// Content implements page.Page.
func (p *Page) Content(_ context.Context) (string, error) {
	if p.doc == nil {
		return "", errNotLoaded
	}
	return p.doc.Html()
}

// Screenshot writes a blank viewport-sized PNG.
func (p *Page) Screenshot(_ context.Context, path string, _ bool) (string, error) {
	if p.doc == nil {
		return "", errNotLoaded
	}
	img := image.NewRGBA(image.Rect(0, 0, p.opts.Width, p.opts.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return "", err
	}
	return path, nil
}

// WaitForTimeout implements page.Page.
func (p *Page) WaitForTimeout(ctx context.Context, d time.Duration) error {
	return page.Sleep(ctx, d)
}

// Close implements page.Page.
func (p *Page) Close() error {
	p.closed = true
	return nil
}

func (p *Page) submit(form *goquery.Selection) {
	if p.opts.OnSubmit != nil {
		p.opts.OnSubmit(p.doc, form)
	}
}

// Frame is a sub-document. A frame whose fetch failed reports that error
// from every query.
type Frame struct {
	url   string
	scope *docScope
	err   error
}

func newFrame(p *Page, target, markup string, err error) *Frame {
	f := &Frame{url: target}
	if err != nil {
		f.err = fmt.Errorf("frame %s inaccessible: %w", target, err)
		return f
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		f.err = fmt.Errorf("frame %s unparsable: %w", target, err)
		return f
	}
	f.scope = &docScope{page: p, doc: doc}
	return f
}

// URL implements page.Frame.
func (f *Frame) URL() string { return f.url }

// QuerySelector implements page.Scope.
func (f *Frame) QuerySelector(ctx context.Context, selector string) (page.Element, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scope.QuerySelector(ctx, selector)
}

// QuerySelectorAll implements page.Scope.
func (f *Frame) QuerySelectorAll(ctx context.Context, selector string) ([]page.Element, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scope.QuerySelectorAll(ctx, selector)
}

// Text implements page.Scope.
func (f *Frame) Text(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.scope.Text(ctx)
}
