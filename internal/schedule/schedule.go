// Package schedule starts jobs on recurring cron expressions. Schedules are
// persisted so they survive restarts.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/controller"
	"github.com/v0xg/formcheck/internal/store"
)

// Starter launches a job. *controller.Controller satisfies it.
type Starter interface {
	Start(url string, formIndex int) (string, error)
}

// Store persists schedules. *store.Store satisfies it.
type Store interface {
	SaveSchedule(ctx context.Context, s *store.Schedule) error
	Schedules(ctx context.Context) ([]store.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// Scheduler owns the cron runner and the live schedule entries.
type Scheduler struct {
	cron    *cron.Cron
	store   Store
	starter Starter
	log     *zap.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New returns a Scheduler. Call Restore then Start.
func New(st Store, starter Starter, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("schedule")
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		store:   st,
		starter: starter,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Restore registers every persisted schedule. Entries whose expression no
// longer parses are logged and skipped.
func (s *Scheduler) Restore(ctx context.Context) error {
	scheds, err := s.store.Schedules(ctx)
	if err != nil {
		return err
	}
	for _, sc := range scheds {
		if err := s.register(sc); err != nil {
			s.log.Warn("Skipping schedule", zap.String("schedule_id", sc.ID), zap.Error(err))
		}
	}
	s.log.Info("Schedules restored", zap.Int("count", len(s.entries)))
	return nil
}

// Add validates, persists and registers a new schedule.
func (s *Scheduler) Add(ctx context.Context, url string, formIndex int, expr string) (*store.Schedule, error) {
	if err := controller.ValidateURL(url); err != nil {
		return nil, err
	}
	expr = strings.TrimSpace(expr)
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	sc := &store.Schedule{
		ID:        strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
		URL:       url,
		FormIndex: max(formIndex, 0),
		Cron:      expr,
	}
	if err := s.store.SaveSchedule(ctx, sc); err != nil {
		return nil, err
	}
	if err := s.register(*sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Remove unregisters and deletes a schedule.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	return s.store.DeleteSchedule(ctx, id)
}

// List returns persisted schedules.
func (s *Scheduler) List(ctx context.Context) ([]store.Schedule, error) {
	return s.store.Schedules(ctx)
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop. The returned context is done once running
// ticks have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) register(sc store.Schedule) error {
	entryID, err := s.cron.AddFunc(sc.Cron, func() { s.fire(sc) })
	if err != nil {
		return fmt.Errorf("failed to add schedule to cron: %w", err)
	}
	s.mu.Lock()
	s.entries[sc.ID] = entryID
	s.mu.Unlock()
	s.log.Debug("Schedule registered", zap.String("schedule_id", sc.ID), zap.String("cron", sc.Cron))
	return nil
}

func (s *Scheduler) fire(sc store.Schedule) {
	id, err := s.starter.Start(sc.URL, sc.FormIndex)
	if err != nil {
		s.log.Warn("Scheduled run failed to start", zap.String("schedule_id", sc.ID), zap.Error(err))
		return
	}
	s.log.Info("Scheduled run started", zap.String("schedule_id", sc.ID), zap.String("job_id", id))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
