package crawler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/formcheck/internal/page"
)

const (
	jsTagName = `() => this.tagName.toLowerCase()`

	jsSetValue = `(v) => {
		this.value = v;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`

	// Picks the option whose value or visible text equals v.
	jsSelectOption = `(v) => {
		const opt = Array.from(this.options).find(o => o.value === v || o.text.trim() === v);
		if (!opt) throw new Error('no option ' + JSON.stringify(v));
		this.value = opt.value;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`

	jsSubmit = `() => {
		if (!(this instanceof HTMLFormElement)) throw new Error('not a form: ' + this.tagName);
		HTMLFormElement.prototype.submit.call(this);
	}`
)

func wrap(els rod.Elements) []page.Element {
	out := make([]page.Element, len(els))
	for i, el := range els {
		out[i] = &element{el: el}
	}
	return out
}

type element struct {
	el *rod.Element
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (e *element) TagName(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(jsTagName)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	return strings.TrimSpace(text), err
}

func (e *element) InnerHTML(ctx context.Context) (string, error) {
	v, err := e.el.Context(ctx).Property("innerHTML")
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func (e *element) QuerySelector(ctx context.Context, selector string) (page.Element, error) {
	has, el, err := e.el.Context(ctx).Has(selector)
	if err != nil || !has {
		return nil, err
	}
	return &element{el: el}, nil
}

func (e *element) QuerySelectorAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrap(els), nil
}

func (e *element) Matches(ctx context.Context, selector string) (bool, error) {
	return e.el.Context(ctx).Matches(selector)
}

func (e *element) Closest(ctx context.Context, selector string) (page.Element, error) {
	els, err := e.el.Context(ctx).Parents(selector)
	if err != nil || els.Empty() {
		return nil, err
	}
	return &element{el: els.First()}, nil
}

// Fill types into text controls, picks options on selects and clicks
// checkboxes and radios.
func (e *element) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	tag, err := e.TagName(ctx)
	if err != nil {
		return err
	}
	if tag == "select" {
		_, err := el.Eval(jsSelectOption, value)
		return err
	}

	typ, err := e.Attribute(ctx, "type")
	if err != nil {
		return err
	}
	switch strings.ToLower(typ) {
	case "checkbox", "radio":
		return el.Click(proto.InputMouseButtonLeft, 1)
	}

	// Clear existing text
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to focus: %w", err)
	}
	return el.Input(value)
}

func (e *element) SetValue(ctx context.Context, value string) error {
	_, err := e.el.Context(ctx).Eval(jsSetValue, value)
	return err
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) Submit(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(jsSubmit)
	return err
}
