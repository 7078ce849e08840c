// Package job holds the per-run state cell: lifecycle state, progress, the
// append-only step log and captured artifacts. One goroutine writes a Job;
// any number of readers take Snapshots.
package job

import (
	"math"
	"sync"
	"time"
)

// State is a job's lifecycle state.
type State string

const (
	StateRunning State = "RUNNING"
	StatePass    State = "PASS"
	StateFail    State = "FAIL"
	StateError   State = "ERROR"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StatePass || s == StateFail || s == StateError
}

// Step statuses used in the log.
const (
	StatusRunning  = "running"
	StatusOK       = "ok"
	StatusFail     = "fail"
	StatusError    = "error"
	StatusNotFound = "not_found"
	StatusSkipped  = "skipped"
)

// Step is one entry of the step log.
type Step struct {
	Action string         `json:"action"`
	Status string         `json:"status,omitempty"`
	Field  string         `json:"field,omitempty"`
	Value  string         `json:"value,omitempty"`
	Error  string         `json:"error,omitempty"`
	Count  *int           `json:"count,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Count returns a pointer suitable for Step.Count.
func Count(n int) *int {
	return &n
}

// Job is a concurrency-safe run record.
type Job struct {
	mu          sync.RWMutex
	id          string
	url         string
	formIndex   int
	state       State
	progress    int
	steps       []Step
	artifacts   []string
	startedAt   time.Time
	completedAt time.Time
	elapsed     time.Duration
	report      string
}

// New returns a RUNNING job started at startedAt.
func New(id, url string, formIndex int, startedAt time.Time) *Job {
	return &Job{
		id:        id,
		url:       url,
		formIndex: formIndex,
		state:     StateRunning,
		startedAt: startedAt,
	}
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// URL returns the target URL.
func (j *Job) URL() string { return j.url }

// FormIndex returns the requested form index.
func (j *Job) FormIndex() int { return j.formIndex }

// AddStep appends s to the log.
func (j *Job) AddStep(s Step) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append(j.steps, s)
}

// SetProgress raises progress to p, clamped to [0,100]. Lower values are
// ignored so progress never regresses.
func (j *Job) SetProgress(p int) {
	p = min(max(p, 0), 100)
	j.mu.Lock()
	defer j.mu.Unlock()
	if p > j.progress {
		j.progress = p
	}
}

// AddArtifact records an artifact reference.
func (j *Job) AddArtifact(ref string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.artifacts = append(j.artifacts, ref)
}

// Finish moves a running job to state and completes its progress. It returns
// false, changing nothing, when the job already finished or state is not
// terminal.
func (j *Job) Finish(state State, now time.Time) bool {
	if !state.Terminal() {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = state
	j.progress = 100
	j.completedAt = now
	j.elapsed = now.Sub(j.startedAt)
	return true
}

// SetReport records the rendered report reference.
func (j *Job) SetReport(ref string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = ref
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Snapshot is an immutable copy of a Job.
type Snapshot struct {
	JobID          string    `json:"job_id"`
	URL            string    `json:"url"`
	FormIndex      int       `json:"form_index"`
	State          State     `json:"result"`
	Progress       int       `json:"progress"`
	Steps          []Step    `json:"steps"`
	Artifacts      []string  `json:"artifacts"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at,omitzero"`
	ElapsedSeconds float64   `json:"elapsed"`
	Report         string    `json:"report"`
	ETA            float64   `json:"eta"`
}

// Snapshot copies the job as of now. Running jobs report elapsed time up to
// now; finished jobs report their recorded duration.
func (j *Job) Snapshot(now time.Time) Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	elapsed := j.elapsed
	if !j.state.Terminal() {
		elapsed = now.Sub(j.startedAt)
	}
	secs := round(elapsed.Seconds(), 2)

	steps := make([]Step, len(j.steps))
	copy(steps, j.steps)
	artifacts := make([]string, len(j.artifacts))
	copy(artifacts, j.artifacts)

	return Snapshot{
		JobID:          j.id,
		URL:            j.url,
		FormIndex:      j.formIndex,
		State:          j.state,
		Progress:       j.progress,
		Steps:          steps,
		Artifacts:      artifacts,
		StartedAt:      j.startedAt,
		CompletedAt:    j.completedAt,
		ElapsedSeconds: secs,
		Report:         j.report,
		ETA:            ETA(secs, j.progress),
	}
}

// ETA extrapolates the seconds remaining from elapsed seconds and progress.
func ETA(elapsed float64, progress int) float64 {
	done := float64(max(progress, 1))
	return round(elapsed/done*float64(max(100-progress, 0)), 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
