// Package page defines the browser capability the form engine drives.
// Implementations live in internal/crawler (headless Chromium) and
// internal/static (fetched markup, no scripts).
package page

import (
	"context"
	"errors"
	"time"
)

// WaitStrategy selects when navigation is considered complete.
type WaitStrategy int

const (
	// WaitNetworkIdle waits until the network has been quiet.
	WaitNetworkIdle WaitStrategy = iota
	// WaitDOMContentLoaded waits only for the initial document to parse.
	WaitDOMContentLoaded
)

func (w WaitStrategy) String() string {
	switch w {
	case WaitNetworkIdle:
		return "networkidle"
	case WaitDOMContentLoaded:
		return "domcontentloaded"
	}
	return "unknown"
}

// ErrUnsupported is returned by drivers for operations they cannot perform.
var ErrUnsupported = errors.New("operation not supported by driver")

// Scope is a document that can be queried: the main page or one of its frames.
// QuerySelector returns a nil Element and nil error when nothing matches.
type Scope interface {
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	// Text returns the visible text of the document body.
	Text(ctx context.Context) (string, error)
}

// Frame is a sub-document. Frames the driver cannot access still appear in
// Page.Frames; their queries return the access error.
type Frame interface {
	Scope
	URL() string
}

// Element is a handle to a DOM node within one page load.
type Element interface {
	// Attribute returns "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
	TagName(ctx context.Context) (string, error)
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)

	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	// Closest returns the nearest ancestor matching selector, or nil.
	Closest(ctx context.Context, selector string) (Element, error)
	// Matches reports whether the element itself matches selector.
	Matches(ctx context.Context, selector string) (bool, error)

	// Fill enters value the way a user would.
	Fill(ctx context.Context, value string) error
	// SetValue assigns the value directly and dispatches input and change
	// events so reactive frameworks observe it.
	SetValue(ctx context.Context, value string) error
	Click(ctx context.Context) error
	// Submit invokes the native submission of a form element.
	Submit(ctx context.Context) error
}

// Page is one browsing session's top-level document.
type Page interface {
	Scope
	Navigate(ctx context.Context, url string, wait WaitStrategy, timeout time.Duration) error
	// Frames returns every sub-frame, excluding the main frame.
	Frames(ctx context.Context) ([]Frame, error)
	// Content returns the serialized markup of the main document.
	Content(ctx context.Context) (string, error)
	// Screenshot writes a PNG to path and returns the path written.
	Screenshot(ctx context.Context, path string, fullPage bool) (string, error)
	WaitForTimeout(ctx context.Context, d time.Duration) error
	Close() error
}

// Launcher opens isolated sessions. Pages from different NewPage calls share
// no cookies, storage or navigation state.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
