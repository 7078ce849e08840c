package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/page"
)

// scope queries one document without waiting for elements to appear.
type scope struct {
	page *rod.Page
}

func (s scope) QuerySelector(ctx context.Context, selector string) (page.Element, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return nil, err
	}
	return &element{el: el}, nil
}

func (s scope) QuerySelectorAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrap(els), nil
}

func (s scope) Text(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Page is one incognito tab.
type Page struct {
	scope
	incognito *rod.Browser
	spaWait   time.Duration
	log       *zap.Logger
}

func lifecycleEvent(w page.WaitStrategy) proto.PageLifecycleEventName {
	if w == page.WaitDOMContentLoaded {
		return proto.PageLifecycleEventNameDOMContentLoaded
	}
	return proto.PageLifecycleEventNameNetworkIdle
}

// Navigate loads url and waits for the lifecycle event matching wait.
func (p *Page) Navigate(ctx context.Context, url string, wait page.WaitStrategy, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rp := p.page.Context(tctx)
	waitNav := rp.WaitNavigation(lifecycleEvent(wait))
	if err := rp.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	waitNav()
	if err := tctx.Err(); err != nil {
		return fmt.Errorf("waiting for %s: %w", wait, err)
	}

	settle(ctx, p.page, p.spaWait, p.log)
	return nil
}

// Frames implements page.Page. Frames whose document cannot be reached are
// returned with that error.
func (p *Page) Frames(ctx context.Context) ([]page.Frame, error) {
	els, err := p.page.Context(ctx).Elements("iframe, frame")
	if err != nil {
		return nil, err
	}
	frames := make([]page.Frame, 0, len(els))
	for _, el := range els {
		src := "about:blank"
		if v, err := el.Context(ctx).Attribute("src"); err == nil && v != nil && *v != "" {
			src = *v
		}
		fp, err := el.Context(ctx).Frame()
		if err != nil {
			frames = append(frames, &Frame{url: src, err: fmt.Errorf("frame %s inaccessible: %w", src, err)})
			continue
		}
		frames = append(frames, &Frame{scope: scope{page: fp}, url: src})
	}
	return frames, nil
}

// Content implements page.Page.
func (p *Page) Content(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// Screenshot implements page.Page.
func (p *Page) Screenshot(ctx context.Context, path string, fullPage bool) (string, error) {
	data, err := p.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// WaitForTimeout implements page.Page.
func (p *Page) WaitForTimeout(ctx context.Context, d time.Duration) error {
	return page.Sleep(ctx, d)
}

// Close releases the tab and its browser context.
func (p *Page) Close() error {
	err := p.page.Close()
	if cerr := p.incognito.Close(); err == nil {
		err = cerr
	}
	return err
}

// Frame is a sub-document of a Page.
type Frame struct {
	scope
	url string
	err error
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
