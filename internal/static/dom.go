package static

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/v0xg/formcheck/internal/page"
)

func compile(selector string) (cascadia.Selector, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return m, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type docScope struct {
	page *Page
	doc  *goquery.Document
}

func (d *docScope) QuerySelector(ctx context.Context, selector string) (page.Element, error) {
	return first(d.QuerySelectorAll(ctx, selector))
}

func (d *docScope) QuerySelectorAll(ctx context.Context, selector string) ([]page.Element, error) {
	return findAll(ctx, d.page, d.doc.Selection, selector)
}

func (d *docScope) Text(_ context.Context) (string, error) {
	return collapse(d.doc.Find("body").Text()), nil
}

func first(els []page.Element, err error) (page.Element, error) {
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func findAll(ctx context.Context, p *Page, within *goquery.Selection, selector string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	var out []page.Element
	within.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{page: p, sel: s})
	})
	return out, nil
}

// element wraps a single-node selection.
type element struct {
	page *Page
	sel  *goquery.Selection
}

func (e *element) Attribute(_ context.Context, name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e *element) TagName(_ context.Context) (string, error) {
	return goquery.NodeName(e.sel), nil
}

func hiddenNode(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func (e *element) Visible(_ context.Context) (bool, error) {
	if goquery.NodeName(e.sel) == "input" && strings.EqualFold(e.sel.AttrOr("type", ""), "hidden") {
		return false, nil
	}
	if hiddenNode(e.sel) {
		return false, nil
	}
	hidden := false
	e.sel.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		hidden = hiddenNode(p)
		return !hidden
	})
	return !hidden, nil
}

func (e *element) Text(_ context.Context) (string, error) {
	return collapse(e.sel.Text()), nil
}

func (e *element) InnerHTML(_ context.Context) (string, error) {
	return e.sel.Html()
}

func (e *element) QuerySelector(ctx context.Context, selector string) (page.Element, error) {
	return first(e.QuerySelectorAll(ctx, selector))
}

func (e *element) QuerySelectorAll(ctx context.Context, selector string) ([]page.Element, error) {
	return findAll(ctx, e.page, e.sel, selector)
}

func (e *element) Matches(_ context.Context, selector string) (bool, error) {
	m, err := compile(selector)
	if err != nil {
		return false, err
	}
	return e.sel.IsMatcher(m), nil
}

func (e *element) Closest(_ context.Context, selector string) (page.Element, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	c := e.sel.Parent().ClosestMatcher(m)
	if c.Length() == 0 {
		return nil, nil
	}
	return &element{page: e.page, sel: c.First()}, nil
}

var (
	errNotEditable = errors.New("element is not editable")
	errNotVisible  = errors.New("element is not visible")
)

// Fill mirrors a user: disabled, read-only and invisible controls refuse input.
func (e *element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := e.sel.Attr("disabled"); ok {
		return errNotEditable
	}
	if _, ok := e.sel.Attr("readonly"); ok {
		return errNotEditable
	}
	if visible, _ := e.Visible(ctx); !visible {
		return errNotVisible
	}

	switch goquery.NodeName(e.sel) {
	case "select":
		return e.selectOption(value)
	case "textarea":
		e.sel.SetText(value)
		return nil
	}
	switch strings.ToLower(e.sel.AttrOr("type", "")) {
	case "checkbox", "radio":
		e.sel.SetAttr("checked", "checked")
		return nil
	}
	e.sel.SetAttr("value", value)
	return nil
}

func (e *element) selectOption(value string) error {
	var match *goquery.Selection
	e.sel.Find("option").EachWithBreak(func(_ int, o *goquery.Selection) bool {
		if o.AttrOr("value", "") == value || collapse(o.Text()) == value {
			match = o
			return false
		}
		return true
	})
	if match == nil {
		return fmt.Errorf("no option %q", value)
	}
	e.sel.Find("option").RemoveAttr("selected")
	match.SetAttr("selected", "selected")
	return nil
}

func (e *element) SetValue(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if goquery.NodeName(e.sel) == "textarea" {
		e.sel.SetText(value)
		return nil
	}
	e.sel.SetAttr("value", value)
	return nil
}

func (e *element) isSubmitControl() bool {
	typ := strings.ToLower(e.sel.AttrOr("type", ""))
	switch goquery.NodeName(e.sel) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

// Click submits the owning form when the element is a submit control.
func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := e.sel.Attr("disabled"); ok {
		return errNotEditable
	}
	if !e.isSubmitControl() {
		return nil
	}
	form := e.sel.Closest("form")
	if form.Length() == 0 {
		return nil
	}
	e.page.submit(form)
	return nil
}

func (e *element) Submit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if goquery.NodeName(e.sel) != "form" {
		return fmt.Errorf("submit on <%s>: %w", goquery.NodeName(e.sel), page.ErrUnsupported)
	}
	e.page.submit(e.sel)
	return nil
}
