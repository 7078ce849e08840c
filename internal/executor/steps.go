package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/discovery"
	"github.com/v0xg/formcheck/internal/form"
	"github.com/v0xg/formcheck/internal/job"
	"github.com/v0xg/formcheck/internal/page"
	"github.com/v0xg/formcheck/internal/templates"
)

const submitQuery = `button[type="submit"], input[type="submit"], button:not([type])`

// navigate tries a network-idle load, then one content-loaded load with a
// fresh budget.
func (e *Executor) navigate(ctx context.Context, pg page.Page, url string, log *zap.Logger) (page.WaitStrategy, error) {
	navErr := &NavigationError{URL: url}
	attempts := []struct {
		wait    page.WaitStrategy
		timeout time.Duration
	}{
		{page.WaitNetworkIdle, e.opts.NavigationTimeout},
		{page.WaitDOMContentLoaded, e.opts.FallbackNavigationTimeout},
	}
	for _, a := range attempts {
		err := pg.Navigate(ctx, url, a.wait, a.timeout)
		if err == nil {
			return a.wait, nil
		}
		log.Debug("Navigation attempt failed", zap.Stringer("wait", a.wait), zap.Error(err))
		navErr.Attempts = append(navErr.Attempts, fmt.Errorf("%s: %w", a.wait, err))
		if ctx.Err() != nil {
			break
		}
	}
	return 0, navErr
}

func (e *Executor) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.StepTimeout)
}

// screenshot captures a full-page PNG named after the job and tag.
func (e *Executor) screenshot(ctx context.Context, pg page.Page, j *job.Job, tag string, log *zap.Logger) {
	if err := e.capture(ctx, pg, j, tag); err != nil {
		log.Warn("Screenshot failed", zap.String("tag", tag), zap.Error(err))
		j.AddStep(job.Step{Action: "screenshot_" + tag + "_error", Status: job.StatusError, Error: err.Error()})
	}
}

func (e *Executor) capture(ctx context.Context, pg page.Page, j *job.Job, tag string) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	if err := os.MkdirAll(e.opts.ArtifactsDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s.png", j.ID(), tag)
	if _, err := pg.Screenshot(ctx, filepath.Join(e.opts.ArtifactsDir, name), true); err != nil {
		return err
	}
	j.AddArtifact("/artifacts/" + name)
	return nil
}

// captureLanding records the landing screenshot and the raw markup.
func (e *Executor) captureLanding(ctx context.Context, pg page.Page, j *job.Job, log *zap.Logger) {
	if err := e.capture(ctx, pg, j, "nav"); err != nil {
		log.Warn("Landing screenshot failed", zap.Error(err))
		j.AddStep(job.Step{Action: "debug_dump_error", Status: job.StatusError, Error: err.Error(), Meta: map[string]any{"artifact": "screenshot"}})
	}
	if err := e.dumpMarkup(ctx, pg, j); err != nil {
		log.Warn("Markup dump failed", zap.Error(err))
		j.AddStep(job.Step{Action: "debug_dump_error", Status: job.StatusError, Error: err.Error(), Meta: map[string]any{"artifact": "markup"}})
	}
}

func (e *Executor) dumpMarkup(ctx context.Context, pg page.Page, j *job.Job) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	markup, err := pg.Content(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.opts.ReportsDir, 0o755); err != nil {
		return err
	}
	name := j.ID() + "_form_debug.html"
	if err := os.WriteFile(filepath.Join(e.opts.ReportsDir, name), []byte(markup), 0o644); err != nil {
		return err
	}
	j.AddArtifact("/reports/" + name)
	return nil
}

func (e *Executor) loadTemplate(j *job.Job, log *zap.Logger) *templates.Template {
	if e.deps.Templates == nil {
		return nil
	}
	tmpl, ok, err := e.deps.Templates.Load(j.URL())
	if err != nil {
		log.Warn("Template load failed", zap.Error(err))
		j.AddStep(job.Step{Action: "template", Status: job.StatusError, Error: err.Error()})
		return nil
	}
	if !ok {
		return nil
	}
	j.AddStep(job.Step{Action: "template", Status: job.StatusOK, Meta: map[string]any{
		"hostname":     tmpl.Hostname,
		"formSelector": tmpl.FormSelector,
		"formIndex":    tmpl.FormIndex,
	}})
	return tmpl
}

// locate finds the target form, retrying while the page has none. A
// template's selector wins when it picks out one form (its saved index breaks
// ties), then its index, then the requested index; an out-of-range index
// falls back to the first form.
func (e *Executor) locate(ctx context.Context, pg page.Page, j *job.Job, tmpl *templates.Template, log *zap.Logger) (discovery.Handle, bool) {
	var (
		handles []discovery.Handle
		skips   []discovery.Skip
	)
	for attempt := 1; attempt <= e.opts.LocateAttempts; attempt++ {
		sctx, cancel := e.bounded(ctx)
		handles, skips = e.deps.Discoverer.Handles(sctx, pg)
		cancel()
		if len(handles) > 0 {
			break
		}
		log.Debug("No forms yet", zap.Int("attempt", attempt))
		if attempt < e.opts.LocateAttempts {
			if err := pg.WaitForTimeout(ctx, e.opts.LocateBackoff); err != nil {
				break
			}
		}
	}

	step := job.Step{Action: "forms_count", Count: job.Count(len(handles))}
	if len(skips) > 0 {
		step.Meta = map[string]any{"skipped": skips}
	}
	j.AddStep(step)
	if len(handles) == 0 {
		return discovery.Handle{}, false
	}

	if tmpl != nil && tmpl.FormSelector != "" {
		sctx, cancel := e.bounded(ctx)
		h, ok := e.deps.Discoverer.Lookup(sctx, handles, tmpl.FormSelector, tmpl.FormIndex)
		cancel()
		if ok {
			j.AddStep(job.Step{Action: "form_found", Status: job.StatusOK, Meta: map[string]any{"via": "template_selector", "selector": tmpl.FormSelector, "formIndex": h.Index}})
			return h, true
		}
		log.Debug("Template selector did not resolve", zap.String("selector", tmpl.FormSelector))
	}

	idx, via := j.FormIndex(), "form_index"
	if tmpl != nil {
		idx, via = tmpl.FormIndex, "template_index"
	}
	if idx < 0 || idx >= len(handles) {
		idx, via = 0, via+"_fallback"
	}
	j.AddStep(job.Step{Action: "form_found", Status: job.StatusOK, Meta: map[string]any{"via": via, "formIndex": idx}})
	return handles[idx], true
}

func (e *Executor) inspect(ctx context.Context, j *job.Job, target discovery.Handle) []form.Field {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	fields, skips := e.deps.Discoverer.InspectFields(ctx, target.Scope, target.Element)
	meta := map[string]any{"fields": fields}
	if len(skips) > 0 {
		meta["skipped"] = skips
	}
	j.AddStep(job.Step{Action: "form_details", Status: job.StatusOK, Count: job.Count(len(fields)), Meta: meta})
	return fields
}

type fillEntry struct {
	key      string
	value    string
	selector string
}

// plan orders the fills: template entries in stored order, then named fields
// the template does not cover. Non-input controls are left alone.
func (e *Executor) plan(fields []form.Field, tmpl *templates.Template) (entries []fillEntry, skipped []string) {
	byName := make(map[string]form.Field, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			continue
		}
		if !f.Fillable() {
			skipped = append(skipped, f.Name)
			continue
		}
		if _, dup := byName[f.Name]; !dup {
			byName[f.Name] = f
		}
	}

	selectorFor := func(key string) string {
		if f, ok := byName[key]; ok && f.Selector != "" {
			return f.Selector
		}
		return form.AttrSelector("", "name", key)
	}

	planned := make(map[string]bool)
	if tmpl != nil && tmpl.Mapping != nil {
		for p := tmpl.Mapping.Oldest(); p != nil; p = p.Next() {
			if p.Key == "" || planned[p.Key] {
				continue
			}
			planned[p.Key] = true
			entries = append(entries, fillEntry{key: p.Key, value: p.Value, selector: selectorFor(p.Key)})
		}
	}
	for _, f := range fields {
		if _, ok := byName[f.Name]; !ok || planned[f.Name] {
			continue
		}
		planned[f.Name] = true
		entries = append(entries, fillEntry{key: f.Name, value: e.deps.Classifier.ValueFor(f), selector: selectorFor(f.Name)})
	}
	return entries, skipped
}

func (e *Executor) fill(ctx context.Context, j *job.Job, target discovery.Handle, fields []form.Field, tmpl *templates.Template, log *zap.Logger) {
	entries, skipped := e.plan(fields, tmpl)
	if len(skipped) > 0 {
		j.AddStep(job.Step{Action: "fields_skipped", Status: job.StatusSkipped, Count: job.Count(len(skipped)), Meta: map[string]any{"names": skipped}})
	}

	filled := 0
	for _, entry := range entries {
		step := e.fillOne(ctx, target, entry, log)
		if step.Status == job.StatusOK {
			filled++
		}
		j.AddStep(step)
		j.SetProgress(min(60, 20+filled*40/len(entries)))
	}
}

func (e *Executor) fillOne(ctx context.Context, target discovery.Handle, entry fillEntry, log *zap.Logger) job.Step {
	step := job.Step{Action: "fill", Field: entry.key, Value: entry.value}

	el, err := target.Element.QuerySelector(ctx, entry.selector)
	if err != nil {
		step.Status, step.Error = job.StatusError, err.Error()
		return step
	}
	if el == nil {
		step.Status = job.StatusNotFound
		return step
	}

	fctx, cancel := context.WithTimeout(ctx, e.opts.FillTimeout)
	err = el.Fill(fctx, entry.value)
	cancel()
	if err == nil {
		step.Status = job.StatusOK
		return step
	}

	log.Debug("Native fill failed, assigning value", zap.String("field", entry.key), zap.Error(err))
	fctx, cancel = context.WithTimeout(ctx, e.opts.FillTimeout)
	defer cancel()
	if serr := el.SetValue(fctx, entry.value); serr != nil {
		step.Status, step.Error = job.StatusError, errors.Join(err, serr).Error()
		return step
	}
	step.Status = job.StatusOK
	step.Meta = map[string]any{"method": "set_value"}
	return step
}

// submit clicks a submit control, falling back to native form submission.
func (e *Executor) submit(ctx context.Context, j *job.Job, target discovery.Handle, log *zap.Logger) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	var clickErr error
	btn, err := target.Element.QuerySelector(ctx, submitQuery)
	if err == nil && btn != nil {
		if clickErr = btn.Click(ctx); clickErr == nil {
			j.AddStep(job.Step{Action: "submit", Status: "clicked"})
			return
		}
		log.Debug("Submit click failed", zap.Error(clickErr))
	}

	if err := target.Element.Submit(ctx); err != nil {
		err = errors.Join(clickErr, err)
		log.Warn("Submit failed", zap.Error(err))
		j.AddStep(job.Step{Action: "submit_error", Status: job.StatusError, Error: err.Error()})
		return
	}
	j.AddStep(job.Step{Action: "submit", Status: "manual_submit"})
}

// detect looks for a success marker, then a success phrase, in the page and
// in the form's own frame. Errors count as no evidence.
func (e *Executor) detect(ctx context.Context, pg page.Page, j *job.Job, target discovery.Handle, log *zap.Logger) bool {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	scopes := []page.Scope{pg}
	if target.InIframe && target.Scope != nil {
		scopes = append(scopes, target.Scope)
	}

	var errs []error
	if len(e.opts.Markers) > 0 {
		markers := strings.Join(e.opts.Markers, ", ")
		for _, s := range scopes {
			el, err := s.QuerySelector(ctx, markers)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if el != nil {
				j.AddStep(job.Step{Action: "detect_success", Status: job.StatusOK})
				return true
			}
		}
	}

	for _, s := range scopes {
		text, err := s.Text(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		text = strings.ToLower(text)
		for _, phrase := range e.opts.Phrases {
			if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
				j.AddStep(job.Step{Action: "detect_text_success", Status: job.StatusOK, Value: phrase})
				return true
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.Warn("Detection failed", zap.Error(err))
		j.AddStep(job.Step{Action: "detect_error", Status: job.StatusError, Error: err.Error()})
	}
	j.AddStep(job.Step{Action: "detect_success", Status: job.StatusFail})
	return false
}
