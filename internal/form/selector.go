package form

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	leadingDigit = regexp.MustCompile(`^-?[0-9]`)
	cssSpecial   = regexp.MustCompile(`[.:#\[\]()>~+*/\\'"\s,]`)
)

// validIdent reports whether s can be used bare after '#' or '.'.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	if leadingDigit.MatchString(s) {
		return false
	}
	return !cssSpecial.MatchString(s)
}

// quoteAttr renders s as a double-quoted CSS attribute value.
func quoteAttr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// AttrSelector builds `tag[attr="value"]`; tag may be empty.
func AttrSelector(tag, attr, value string) string {
	return fmt.Sprintf("%s[%s=%s]", tag, attr, quoteAttr(value))
}

// FieldSelector builds a form-scoped locator for a field: name first, then id,
// then tag plus up to two class tokens, then the bare tag.
func FieldSelector(name, id, tag, class string) string {
	tag = strings.ToLower(tag)
	if name != "" {
		return AttrSelector("", "name", name)
	}
	if id != "" {
		if validIdent(id) {
			return "#" + id
		}
		return AttrSelector("", "id", id)
	}
	var classes []string
	for _, c := range strings.Fields(class) {
		if validIdent(c) {
			classes = append(classes, c)
		}
		if len(classes) == 2 {
			break
		}
	}
	if len(classes) > 0 {
		return tag + "." + strings.Join(classes, ".")
	}
	return tag
}

// FormSelector builds a form locator: id, then the first class token, then
// the 1-based position among forms of the same frame.
func FormSelector(id, class string, position int) string {
	if id != "" {
		if validIdent(id) {
			return "form#" + id
		}
		return AttrSelector("form", "id", id)
	}
	if fields := strings.Fields(class); len(fields) > 0 && validIdent(fields[0]) {
		return "form." + fields[0]
	}
	return fmt.Sprintf("form:nth-of-type(%d)", position)
}
