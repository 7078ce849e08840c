// Package discovery walks a loaded page, its main document first and then
// every sub-frame, and returns a normalised inventory of forms and fields.
// Discovery is read-only: it never fills, clicks or evaluates page scripts.
package discovery

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/form"
	"github.com/v0xg/formcheck/internal/page"
)

const (
	formQuery  = "form"
	fieldQuery = "input, textarea, select"

	defaultPreviewLimit = 2000
)

// Options configures discovery.
type Options struct {
	// PreviewLimit bounds Form.PreviewHTML in characters.
	PreviewLimit int
}

// Discoverer enumerates forms on a page.
type Discoverer struct {
	opts Options
	log  *zap.Logger
}

// New returns a Discoverer. A nil logger discards output.
func New(opts Options, log *zap.Logger) *Discoverer {
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = defaultPreviewLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Discoverer{opts: opts, log: log.Named("discovery")}
}

// Handle is one located form element together with the document it lives in.
type Handle struct {
	Index    int
	Position int // 1-based among forms of the same document
	Scope    page.Scope
	Element  page.Element
	InIframe bool
	FrameURL string
}

// Skip records a scope or element that discovery could not read.
type Skip struct {
	Scope  string `json:"scope"`
	Reason string `json:"reason"`
}

// Result is a discovery inventory. Forms are indexed contiguously from zero;
// Skips lists everything that was passed over and why.
type Result struct {
	Forms []form.Form `json:"forms"`
	Skips []Skip      `json:"skips,omitempty"`
}

// Handles enumerates forms in document order: main document first, then each
// sub-frame in turn, with indices continuing across documents. A frame that
// cannot be queried is recorded as a Skip and does not stop the walk.
func (d *Discoverer) Handles(ctx context.Context, p page.Page) ([]Handle, []Skip) {
	var (
		handles []Handle
		skips   []Skip
	)

	collect := func(scope page.Scope, name string, inIframe bool, frameURL string) {
		els, err := scope.QuerySelectorAll(ctx, formQuery)
		if err != nil {
			skips = append(skips, Skip{Scope: name, Reason: err.Error()})
			d.log.Debug("Skipping document", zap.String("scope", name), zap.Error(err))
			return
		}
		for i, el := range els {
			handles = append(handles, Handle{
				Index:    len(handles),
				Position: i + 1,
				Scope:    scope,
				Element:  el,
				InIframe: inIframe,
				FrameURL: frameURL,
			})
		}
	}

	collect(p, "main", false, "")

	frames, err := p.Frames(ctx)
	if err != nil {
		skips = append(skips, Skip{Scope: "frames", Reason: err.Error()})
		d.log.Debug("Frame enumeration failed", zap.Error(err))
		return handles, skips
	}
	for i, fr := range frames {
		collect(fr, fmt.Sprintf("frame[%d] %s", i, fr.URL()), true, fr.URL())
	}
	return handles, skips
}

// Discover returns the form inventory of p.
func (d *Discoverer) Discover(ctx context.Context, p page.Page) Result {
	handles, skips := d.Handles(ctx, p)
	res := Result{Forms: make([]form.Form, 0, len(handles)), Skips: skips}
	for _, h := range handles {
		f, fieldSkips := d.Describe(ctx, h)
		res.Forms = append(res.Forms, f)
		res.Skips = append(res.Skips, fieldSkips...)
	}
	d.log.Debug("Discovery finished",
		zap.Int("forms", len(res.Forms)),
		zap.Int("skips", len(res.Skips)))
	return res
}

// Describe reads the form-level attributes of h and enumerates its fields.
// Unreadable attributes fall back to their empty values.
func (d *Discoverer) Describe(ctx context.Context, h Handle) (form.Form, []Skip) {
	el := h.Element
	id := page.Try(el.Attribute(ctx, "id")).Or("")
	class := page.Try(el.Attribute(ctx, "class")).Or("")
	method := strings.ToLower(page.Try(el.Attribute(ctx, "method")).Or(""))
	if method == "" {
		method = "get"
	}

	f := form.Form{
		Index:       h.Index,
		Selector:    form.FormSelector(id, class, h.Position),
		Action:      page.Try(el.Attribute(ctx, "action")).Or(""),
		Method:      method,
		Visible:     page.Try(el.Visible(ctx)).Or(true),
		PreviewHTML: d.preview(page.Try(el.InnerHTML(ctx)).Or("")),
		InIframe:    h.InIframe,
	}
	fields, skips := d.InspectFields(ctx, h.Scope, el)
	f.Fields = fields
	return f, skips
}

func (d *Discoverer) preview(markup string) string {
	markup = strings.TrimSpace(markup)
	r := []rune(markup)
	if len(r) > d.opts.PreviewLimit {
		return strings.TrimSpace(string(r[:d.opts.PreviewLimit]))
	}
	return markup
}

// InspectFields lists the input, textarea and select descendants of formEl
// in document order. scope is the document used for label lookups. Elements
// whose tag cannot be read are skipped.
func (d *Discoverer) InspectFields(ctx context.Context, scope page.Scope, formEl page.Element) ([]form.Field, []Skip) {
	els, err := formEl.QuerySelectorAll(ctx, fieldQuery)
	if err != nil {
		return nil, []Skip{{Scope: "fields", Reason: err.Error()}}
	}

	fields := make([]form.Field, 0, len(els))
	var skips []Skip
	for i, el := range els {
		f, attempt := d.inspectField(ctx, scope, el)
		if !attempt.Ok() {
			skips = append(skips, Skip{Scope: fmt.Sprintf("field[%d]", i), Reason: attempt.Reason})
			d.log.Debug("Skipping field", zap.Int("position", i), zap.String("reason", attempt.Reason))
			continue
		}
		fields = append(fields, f)
	}
	return fields, skips
}

func (d *Discoverer) inspectField(ctx context.Context, scope page.Scope, el page.Element) (form.Field, page.Attempt[struct{}]) {
	tag := page.Try(el.TagName(ctx))
	if !tag.Ok() {
		return form.Field{}, page.Skipped[struct{}]("tag: %s", tag.Reason)
	}

	attr := func(name string) string {
		return page.Try(el.Attribute(ctx, name)).Or("")
	}
	rawName, id := attr("name"), attr("id")
	name := rawName
	if name == "" {
		name = id
	}
	aria := attr("aria-label")
	if aria == "" {
		aria = attr("title")
	}

	return form.Field{
		Name:        name,
		ID:          id,
		Tag:         strings.ToLower(tag.Value),
		InputType:   form.ResolveType(attr("type"), tag.Value),
		Placeholder: attr("placeholder"),
		Label:       d.label(ctx, scope, el, id).Or(""),
		AriaLabel:   aria,
		Selector:    form.FieldSelector(rawName, id, tag.Value, attr("class")),
		Visible:     page.Try(el.Visible(ctx)).Or(true),
	}, page.OK(struct{}{})
}

// label resolves `label[for=id]` in the field's document, then the nearest
// enclosing label.
func (d *Discoverer) label(ctx context.Context, scope page.Scope, el page.Element, id string) page.Attempt[string] {
	if id != "" {
		lab, err := scope.QuerySelector(ctx, form.AttrSelector("label", "for", id))
		if err == nil && lab != nil {
			if text := page.Try(lab.Text(ctx)).Or(""); text != "" {
				return page.OK(text)
			}
		}
	}
	lab, err := el.Closest(ctx, "label")
	if err != nil {
		return page.Skipped[string]("closest label: %v", err)
	}
	if lab == nil {
		return page.Skipped[string]("no label")
	}
	return page.Try(lab.Text(ctx))
}

// Lookup resolves a stored form selector among handles. A selector matching
// exactly one form resolves to it. When several forms match, preferred (an
// index into handles) settles the tie if that form is one of them; otherwise
// the lookup fails and the caller falls back to an index.
func (d *Discoverer) Lookup(ctx context.Context, handles []Handle, selector string, preferred int) (Handle, bool) {
	var matched []int
	for i, h := range handles {
		ok, err := h.Element.Matches(ctx, selector)
		if err != nil {
			d.log.Debug("Selector match failed", zap.Int("form", h.Index), zap.Error(err))
			continue
		}
		if ok {
			matched = append(matched, i)
		}
	}

	switch {
	case len(matched) == 1:
		return handles[matched[0]], true
	case len(matched) > 1 && slices.Contains(matched, preferred):
		return handles[preferred], true
	case len(matched) > 1:
		d.log.Debug("Ambiguous form selector",
			zap.String("selector", selector),
			zap.Int("matches", len(matched)),
			zap.Int("preferred", preferred))
	}
	return Handle{}, false
}
