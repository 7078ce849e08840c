// Package store persists finished job records and recurring schedules in an
// embedded Badger database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/job"
)

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 50

// ErrNotFound is returned for unknown record or schedule ids.
var ErrNotFound = errors.New("not found")

// Record is the persisted outcome of one job.
type Record struct {
	JobID     string     `json:"job_id"`
	URL       string     `json:"url"`
	Timestamp time.Time  `json:"timestamp"`
	Result    job.State  `json:"result"`
	Steps     []job.Step `json:"steps"`
	Artifacts []string   `json:"artifacts"`
	Report    string     `json:"report"`
	Elapsed   float64    `json:"elapsed"`
}

// Schedule starts a job for URL on every Cron tick.
type Schedule struct {
	ID        string    `json:"id"`
	URL       string    `json:"url" validate:"required,url"`
	FormIndex int       `json:"form_index" validate:"gte=0"`
	Cron      string    `json:"cron" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps a badgerhold store.
type Store struct {
	db  *badgerhold.Store
	log *zap.Logger
}

// Open opens (creating if needed) the database under dir.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = badgerLogger{log.Sugar()}
	// Step metadata holds arbitrary JSON values gob cannot encode unregistered.
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	log.Debug("Badger database opened", zap.String("path", dir))
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord persists a finished job. It satisfies the executor's recorder.
func (s *Store) SaveRecord(ctx context.Context, snap job.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ts := snap.CompletedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := Record{
		JobID:     snap.JobID,
		URL:       snap.URL,
		Timestamp: ts.UTC(),
		Result:    snap.State,
		Steps:     snap.Steps,
		Artifacts: snap.Artifacts,
		Report:    snap.Report,
		Elapsed:   snap.ElapsedSeconds,
	}
	if err := s.db.Upsert(rec.JobID, rec); err != nil {
		return fmt.Errorf("failed to save job record: %w", err)
	}
	return nil
}

// Record returns the stored record for id.
func (s *Store) Record(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := s.db.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}
	return &rec, nil
}

// History returns records whose URL or result contains search, ignoring
// case, newest first. limit <= 0 means DefaultHistoryLimit.
func (s *Store) History(ctx context.Context, search string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := badgerhold.Where("JobID").Ne("")
	if search != "" {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(search))
		if err != nil {
			return nil, err
		}
		query = badgerhold.Where("URL").RegExp(re).Or(badgerhold.Where("Result").RegExp(re))
	}

	records := []Record{}
	if err := s.db.Find(&records, query.SortBy("Timestamp").Reverse().Limit(limit)); err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// SaveSchedule upserts sched. CreatedAt is set on first save.
func (s *Store) SaveSchedule(ctx context.Context, sched *Schedule) error {
	if sched.ID == "" {
		return fmt.Errorf("schedule ID is required")
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Upsert(sched.ID, sched); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// Schedules lists schedules, oldest first.
func (s *Store) Schedules(ctx context.Context) ([]Schedule, error) {
	scheds := []Schedule{}
	if err := s.db.Find(&scheds, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return scheds, nil
}

// DeleteSchedule removes the schedule with id.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.db.Delete(id, &Schedule{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

// badgerLogger routes Badger's internal logging through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}

// Infof is demoted; Badger is chatty at info level.
func (l badgerLogger) Infof(format string, args ...any) {
	l.Debugf(format, args...)
}
