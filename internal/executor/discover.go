package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/classifier"
	"github.com/v0xg/formcheck/internal/discovery"
	"github.com/v0xg/formcheck/internal/form"
)

// Discover opens a fresh session on url with the same two-stage navigation
// a run uses, waits settle for late scripts, and returns the inventory.
func (e *Executor) Discover(ctx context.Context, url string, settle time.Duration) (discovery.Result, error) {
	log := e.log.With(zap.String("url", url))
	pg, err := e.deps.Launcher.NewPage(ctx)
	if err != nil {
		return discovery.Result{}, fmt.Errorf("failed to open page session: %w", err)
	}
	defer pg.Close()

	if _, err := e.navigate(ctx, pg, url, log); err != nil {
		return discovery.Result{}, err
	}
	if err := pg.WaitForTimeout(ctx, settle); err != nil {
		return discovery.Result{}, err
	}

	res := e.deps.Discoverer.Discover(ctx, pg)
	log.Info("Discovery finished", zap.Int("forms", len(res.Forms)), zap.Int("skipped", len(res.Skips)))
	return res, nil
}

// TemplateWriter persists a template. *templates.Store satisfies it.
type TemplateWriter interface {
	Save(url, selector string, formIndex int, m *form.Mapping) (string, error)
}

// Learned is the outcome of Learn. SuggestError is set when the suggester
// failed and table values were saved instead.
type Learned struct {
	Path         string        `json:"path"`
	Mapping      *form.Mapping `json:"mapping"`
	SuggestError string        `json:"suggestError,omitempty"`
}

// Learn builds a mapping for f and saves it as url's template.
func Learn(ctx context.Context, w TemplateWriter, table *classifier.Table, s classifier.Suggester, url string, f form.Form) (Learned, error) {
	var out Learned
	m, err := classifier.BuildMapping(ctx, table, f, s)
	if err != nil {
		if m == nil {
			return out, err
		}
		out.SuggestError = err.Error()
	}
	out.Mapping = m
	out.Path, err = w.Save(url, f.Selector, f.Index, m)
	if err != nil {
		return out, fmt.Errorf("failed to save template: %w", err)
	}
	return out, nil
}

// PickForm returns the form at index, or the first form when index is out
// of range.
func PickForm(forms []form.Form, index int) (form.Form, bool) {
	if len(forms) == 0 {
		return form.Form{}, false
	}
	if index < 0 || index >= len(forms) {
		index = 0
	}
	return forms[index], true
}
