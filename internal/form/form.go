// Package form holds the closed data model shared by discovery, templates and
// the executor: discovered forms, their fields, and ordered value mappings.
package form

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Field describes one input, textarea or select inside a form.
// Absent attributes are empty strings, never missing keys.
type Field struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Tag         string `json:"tag"`
	InputType   string `json:"type"`
	Placeholder string `json:"placeholder"`
	Label       string `json:"label"`
	AriaLabel   string `json:"ariaLabel"`
	Selector    string `json:"selector"`
	Visible     bool   `json:"visible"`
}

// Form is one form found on a page or inside one of its frames.
type Form struct {
	Index       int     `json:"formIndex"`
	Selector    string  `json:"selector"`
	Action      string  `json:"action"`
	Method      string  `json:"method"`
	Visible     bool    `json:"visible"`
	PreviewHTML string  `json:"previewHtml"`
	Fields      []Field `json:"fields"`
	InIframe    bool    `json:"inIframe"`
}

// Mapping is an insertion-ordered field key → value table.
type Mapping = orderedmap.OrderedMap[string, string]

// NewMapping returns an empty Mapping.
func NewMapping() *Mapping {
	return orderedmap.New[string, string]()
}

// nonInput lists control types that carry no user-entered value.
var nonInput = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// Fillable reports whether the field takes a synthesized value.
func (f Field) Fillable() bool {
	return f.Name != "" && !nonInput[f.InputType]
}

// ResolveType normalises the type attribute, inferring from the tag when absent.
func ResolveType(typeAttr, tag string) string {
	if typeAttr != "" {
		return strings.ToLower(typeAttr)
	}
	switch strings.ToLower(tag) {
	case "textarea":
		return "textarea"
	case "select":
		return "select"
	}
	return "text"
}
