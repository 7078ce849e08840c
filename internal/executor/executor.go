// Package executor drives one form interaction run against a page session
// and records every step into the run's job.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/classifier"
	"github.com/v0xg/formcheck/internal/discovery"
	"github.com/v0xg/formcheck/internal/job"
	"github.com/v0xg/formcheck/internal/page"
	"github.com/v0xg/formcheck/internal/templates"
)

// Default success evidence.
var (
	DefaultMarkers = []string{".wpcf7-mail-sent-ok", ".wpforms-confirmation-container"}
	DefaultPhrases = []string{"thank you", "message sent", "successfully sent"}
)

// Options configures execution behavior
type Options struct {
	NavigationTimeout         time.Duration
	FallbackNavigationTimeout time.Duration
	FillTimeout               time.Duration
	StepTimeout               time.Duration // bound for each discovery, submit and detection phase
	SettleDelay               time.Duration
	LocateAttempts            int
	LocateBackoff             time.Duration
	FinalizeTimeout           time.Duration

	ArtifactsDir string
	ReportsDir   string

	Markers []string
	Phrases []string
}

func (o *Options) setDefaults() {
	if o.NavigationTimeout == 0 {
		o.NavigationTimeout = 45 * time.Second
	}
	if o.FallbackNavigationTimeout == 0 {
		o.FallbackNavigationTimeout = 30 * time.Second
	}
	if o.FillTimeout == 0 {
		o.FillTimeout = 3 * time.Second
	}
	if o.StepTimeout == 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = 3 * time.Second
	}
	if o.LocateAttempts <= 0 {
		o.LocateAttempts = 5
	}
	if o.LocateBackoff == 0 {
		o.LocateBackoff = time.Second
	}
	if o.FinalizeTimeout == 0 {
		o.FinalizeTimeout = 60 * time.Second
	}
	if o.ArtifactsDir == "" {
		o.ArtifactsDir = "artifacts"
	}
	if o.ReportsDir == "" {
		o.ReportsDir = "reports"
	}
	if o.Markers == nil {
		o.Markers = DefaultMarkers
	}
	if o.Phrases == nil {
		o.Phrases = DefaultPhrases
	}
}

// TemplateSource loads the template governing a URL, if any.
type TemplateSource interface {
	Load(url string) (*templates.Template, bool, error)
}

// Reporter renders a finished job and returns a reference to the document.
type Reporter interface {
	Render(ctx context.Context, snap job.Snapshot) (string, error)
}

// Notifier delivers a finished job's outcome. sent is false when delivery is
// not configured.
type Notifier interface {
	Notify(ctx context.Context, snap job.Snapshot, reportPath string) (sent bool, err error)
}

// Recorder persists a finished job.
type Recorder interface {
	SaveRecord(ctx context.Context, snap job.Snapshot) error
}

// Deps are the collaborators of an Executor. Templates, Reporter, Notifier
// and Recorder are optional.
type Deps struct {
	Launcher   page.Launcher
	Discoverer *discovery.Discoverer
	Classifier *classifier.Table
	Templates  TemplateSource
	Reporter   Reporter
	Notifier   Notifier
	Recorder   Recorder
}

// Executor runs jobs. It is safe for concurrent use; every run opens its own
// page session.
type Executor struct {
	deps Deps
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// New returns an Executor.
func New(deps Deps, opts Options, log *zap.Logger) *Executor {
	opts.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Discoverer == nil {
		deps.Discoverer = discovery.New(discovery.Options{}, log)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.NewTable(nil, "")
	}
	return &Executor{deps: deps, opts: opts, log: log.Named("executor"), now: time.Now}
}

// ErrNavigation marks a run whose page never loaded.
var ErrNavigation = errors.New("navigation failed")

// NavigationError reports both navigation attempts.
type NavigationError struct {
	URL      string
	Attempts []error
}

func (e *NavigationError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("navigation to %s failed: %s", e.URL, strings.Join(parts, "; "))
}

func (e *NavigationError) Unwrap() []error {
	return append([]error{ErrNavigation}, e.Attempts...)
}

// Run executes j to completion. It never panics and always finalizes j: the
// job ends PASS when success was detected, FAIL when it was not, and ERROR
// when navigation failed or the run aborted.
func (e *Executor) Run(ctx context.Context, j *job.Job) {
	log := e.log.With(zap.String("job_id", j.ID()), zap.String("url", j.URL()))
	log.Info("Run started", zap.Int("form_index", j.FormIndex()))

	state := e.guarded(ctx, j, log)
	e.finalize(j, state, log)
}

func (e *Executor) guarded(ctx context.Context, j *job.Job, log *zap.Logger) (state job.State) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Run panicked", zap.Any("panic", r), zap.Stack("stack"))
			j.AddStep(job.Step{Action: "exception", Status: job.StatusError, Error: fmt.Sprint(r)})
			state = job.StateError
		}
	}()

	success, err := e.execute(ctx, j, log)
	switch {
	case err != nil:
		log.Warn("Run aborted", zap.Error(err))
		j.AddStep(job.Step{Action: "exception", Status: job.StatusError, Error: err.Error()})
		return job.StateError
	case success:
		return job.StatePass
	default:
		return job.StateFail
	}
}

// execute returns an error only for faults that make the outcome unknowable.
func (e *Executor) execute(ctx context.Context, j *job.Job, log *zap.Logger) (bool, error) {
	pg, err := e.deps.Launcher.NewPage(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to open page session: %w", err)
	}
	defer func() {
		if err := pg.Close(); err != nil {
			log.Debug("Page close failed", zap.Error(err))
		}
	}()

	j.AddStep(job.Step{Action: "navigate", Status: job.StatusRunning})
	wait, err := e.navigate(ctx, pg, j.URL(), log)
	if err != nil {
		return false, err
	}
	j.AddStep(job.Step{Action: "navigate_done", Status: job.StatusOK, Meta: map[string]any{"wait": wait.String()}})
	j.SetProgress(10)

	e.captureLanding(ctx, pg, j, log)

	tmpl := e.loadTemplate(j, log)

	target, ok := e.locate(ctx, pg, j, tmpl, log)
	if !ok {
		j.AddStep(job.Step{Action: "no_forms", Status: job.StatusFail})
		return false, nil
	}
	j.SetProgress(20)

	fields := e.inspect(ctx, j, target)
	e.fill(ctx, j, target, fields, tmpl, log)
	e.screenshot(ctx, pg, j, "after_fill", log)

	e.submit(ctx, j, target, log)
	j.SetProgress(80)

	if err := pg.WaitForTimeout(ctx, e.opts.SettleDelay); err != nil {
		return false, fmt.Errorf("settle wait interrupted: %w", err)
	}

	success := e.detect(ctx, pg, j, target, log)
	e.screenshot(ctx, pg, j, "after_submit", log)
	return success, nil
}

// finalize always runs. Collaborator failures become steps and never change
// the resolved state.
func (e *Executor) finalize(j *job.Job, state job.State, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Finalization panicked", zap.Any("panic", r))
			j.AddStep(job.Step{Action: "finalize_error", Status: job.StatusError, Error: fmt.Sprint(r)})
		}
	}()

	j.Finish(state, e.now())

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.FinalizeTimeout)
	defer cancel()

	var reportPath string
	if e.deps.Reporter != nil {
		ref, err := e.deps.Reporter.Render(ctx, j.Snapshot(e.now()))
		if err != nil {
			log.Warn("Report failed", zap.Error(err))
			j.AddStep(job.Step{Action: "report_error", Status: job.StatusError, Error: err.Error()})
		} else {
			reportPath = ref
			j.SetReport(ref)
		}
	}

	if e.deps.Notifier != nil {
		sent, err := e.deps.Notifier.Notify(ctx, j.Snapshot(e.now()), reportPath)
		switch {
		case err != nil:
			log.Warn("Notification failed", zap.Error(err))
			j.AddStep(job.Step{Action: "email_error", Status: job.StatusError, Error: err.Error()})
		case !sent:
			j.AddStep(job.Step{Action: "notify", Status: job.StatusSkipped})
		default:
			j.AddStep(job.Step{Action: "notify", Status: job.StatusOK})
		}
	}

	if e.deps.Recorder != nil {
		if err := e.deps.Recorder.SaveRecord(ctx, j.Snapshot(e.now())); err != nil {
			log.Warn("Record save failed", zap.Error(err))
			j.AddStep(job.Step{Action: "store_error", Status: job.StatusError, Error: err.Error()})
		}
	}

	snap := j.Snapshot(e.now())
	log.Info("Run finished",
		zap.String("result", string(snap.State)),
		zap.Float64("elapsed", snap.ElapsedSeconds),
		zap.Int("steps", len(snap.Steps)))
}
