package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/v0xg/formcheck/internal/form"
)

const systemPrompt = `You generate realistic test data for web form fields. The data is used by an automated form tester, so it must look plausible but must never belong to a real person.

You will receive a JSON array of fields. Each field has:
- "name": the key you must answer with
- "type": the input type (text, email, tel, url, number, date, textarea, select, checkbox, radio, ...)
- "label", "placeholder", "ariaLabel": hints about what the field expects (any may be empty)

Output a JSON object mapping each field name to a single string value.

Guidelines:
- Respect the input type: emails use the example.com domain, phone numbers use the 555 range, dates use YYYY-MM-DD
- Keep textarea values to one or two sentences that say this is an automated test
- For select, checkbox and radio fields, answer with a short plausible option label
- Never leave a value empty

Example output:
{"company": "Example Industries", "job_title": "QA Engineer"}

Respond ONLY with the JSON object, no explanation or markdown.`

type promptField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	AriaLabel   string `json:"ariaLabel,omitempty"`
}

func buildUserPrompt(fields []form.Field) (string, error) {
	out := make([]promptField, 0, len(fields))
	for _, f := range fields {
		out = append(out, promptField{
			Name:        f.Name,
			Type:        f.InputType,
			Label:       f.Label,
			Placeholder: f.Placeholder,
			AriaLabel:   f.AriaLabel,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}
	return "Fields:\n" + string(data), nil
}

var errNoObject = errors.New("no JSON object in reply")

// parseValuesJSON reads the first JSON object embedded in a reply, ignoring
// any prose or code fences around it. Numbers and booleans are kept in their
// JSON text form; nulls, arrays and nested objects are dropped.
func parseValuesJSON(reply string) (map[string]string, error) {
	var lastErr error
	for off := 0; ; {
		i := strings.IndexByte(reply[off:], '{')
		if i < 0 {
			break
		}
		off += i

		var raw map[string]json.RawMessage
		err := json.NewDecoder(strings.NewReader(reply[off:])).Decode(&raw)
		if err == nil {
			return flatten(raw), nil
		}
		lastErr = err
		off++
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", errNoObject, lastErr)
	}
	return nil, errNoObject
}

func flatten(raw map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		switch text := strings.TrimSpace(string(v)); {
		case text == "null", strings.HasPrefix(text, "{"), strings.HasPrefix(text, "["):
		default:
			out[k] = text
		}
	}
	return out
}
