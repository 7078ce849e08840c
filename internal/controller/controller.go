// Package controller owns the job registry. Start inserts a RUNNING job and
// runs it on its own goroutine; Status serves snapshots to any number of
// concurrent readers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/job"
)

var (
	// ErrInvalidURL rejects targets without an http or https scheme.
	ErrInvalidURL = errors.New("invalid url: http or https required")
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
)

// Runner executes one job to completion.
type Runner interface {
	Run(ctx context.Context, j *job.Job)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, j *job.Job)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, j *job.Job) { f(ctx, j) }

// Handle tracks a started job.
type Handle struct {
	ID   string
	done chan struct{}
}

// Done is closed once the run, finalization included, has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

type entry struct {
	job  *job.Job
	done chan struct{}
}

// Controller schedules runs and tracks their jobs.
type Controller struct {
	runner Runner
	log    *zap.Logger
	now    func() time.Time
	newID  func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New returns a Controller whose runs inherit ctx. A nil logger discards
// output.
func New(ctx context.Context, runner Runner, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Controller{
		runner: runner,
		log:    log.Named("controller"),
		now:    time.Now,
		newID:  newJobID,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// newJobID returns a short opaque id.
func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// ValidateURL accepts absolute http and https URLs.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// Start validates rawURL and schedules a run, returning immediately.
func (c *Controller) Start(rawURL string, formIndex int) (string, error) {
	h, err := c.Submit(rawURL, formIndex)
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

// Submit is Start returning a completion handle.
func (c *Controller) Submit(rawURL string, formIndex int) (*Handle, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	if formIndex < 0 {
		formIndex = 0
	}

	e := &entry{done: make(chan struct{})}
	c.mu.Lock()
	id := c.newID()
	for _, taken := c.jobs[id]; taken; _, taken = c.jobs[id] {
		id = c.newID()
	}
	e.job = job.New(id, rawURL, formIndex, c.now())
	c.jobs[id] = e
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Info("Job started", zap.String("job_id", id), zap.String("url", rawURL))
	go func() {
		defer c.wg.Done()
		defer close(e.done)
		c.runner.Run(c.ctx, e.job)
	}()
	return &Handle{ID: id, done: e.done}, nil
}

// Status returns a snapshot of job id.
func (c *Controller) Status(id string) (job.Snapshot, error) {
	c.mu.RLock()
	e, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return job.Snapshot{}, ErrNotFound
	}
	return e.job.Snapshot(c.now()), nil
}

// List returns snapshots of every tracked job, newest first.
func (c *Controller) List() []job.Snapshot {
	c.mu.RLock()
	out := make([]job.Snapshot, 0, len(c.jobs))
	for _, e := range c.jobs {
		out = append(out, e.job.Snapshot(c.now()))
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Wait blocks until every started run has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown cancels in-flight runs and waits for them to finalize, or for ctx
// to expire.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
