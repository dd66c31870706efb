// Package scheduler fires daily notifications at fixed wall-clock times in a
// configured time zone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/xaenox/moodmate/internal/models"
	"go.uber.org/zap"
)

// Broadcaster receives job firings. *notifier.Notifier satisfies it.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel models.Channel, message string)
}

// ConfigError reports a time zone that cannot be resolved.
type ConfigError struct {
	Timezone string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scheduler: invalid timezone %q: %v", e.Timezone, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type jobDef struct {
	job     Job
	entryID cron.EntryID
}

// Scheduler is Stopped until Start succeeds and Running until Shutdown.
// Both transitions are idempotent. Job definitions survive Shutdown and are
// re-armed by the next Start.
type Scheduler struct {
	mu sync.Mutex

	notifier   Broadcaster
	logger     *zap.Logger
	jobTimeout time.Duration

	parser  cron.Parser
	specFor func(Job, *time.Location) string
	c       *cron.Cron
	loc    *time.Location
	defs   map[string]*jobDef
}

type Option func(*Scheduler)

// WithJobTimeout bounds the context handed to each broadcast.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.jobTimeout = d }
}

func New(notifier Broadcaster, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		notifier: notifier,
		logger:   logger,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		specFor:  Job.spec,
		defs:     map[string]*jobDef{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resolves timezoneName, registers the default jobs and starts the
// clock. It is a no-op while running. An unknown zone yields *ConfigError and
// leaves the scheduler stopped.
func (s *Scheduler) Start(timezoneName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	name := strings.TrimSpace(timezoneName)
	if name == "" {
		return &ConfigError{Timezone: timezoneName, Err: errors.New("empty timezone name")}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return &ConfigError{Timezone: timezoneName, Err: err}
	}

	clog := cronLogger{l: s.logger.Sugar()}
	s.loc = loc
	s.c = cron.New(
		cron.WithLocation(loc),
		cron.WithParser(s.parser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog)),
	)

	// a default never overrides a job registered under its id
	for _, job := range DefaultJobs() {
		if _, ok := s.defs[job.ID]; !ok {
			s.defs[job.ID] = &jobDef{job: job}
		}
	}
	for _, id := range s.sortedIDsLocked() {
		if err := s.armLocked(s.defs[id]); err != nil {
			s.c, s.loc = nil, nil
			return fmt.Errorf("scheduler: register %s: %w", id, err)
		}
	}

	s.c.Start()
	s.logger.Info("Scheduler started",
		zap.String("tz", loc.String()),
		zap.Int("jobs", len(s.defs)))
	return nil
}

// Shutdown stops future firings and returns without waiting for callbacks
// that are already running. It is a no-op when stopped.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}

	// running jobs are not awaited
	_ = s.c.Stop()
	s.c, s.loc = nil, nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.logger.Info("Scheduler stopped")
}

// Register adds job or replaces the job with the same ID.
func (s *Scheduler) Register(job Job) error {
	if err := job.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.defs[job.ID]; ok && s.c != nil && old.entryID != 0 {
		s.c.Remove(old.entryID)
	}
	def := &jobDef{job: job}
	s.defs[job.ID] = def
	if s.c == nil {
		return nil
	}
	if err := s.armLocked(def); err != nil {
		delete(s.defs, job.ID)
		return err
	}
	s.logger.Debug("Job registered",
		zap.String("id", job.ID),
		zap.String("spec", s.specFor(job, s.loc)))
	return nil
}

// Remove deletes the job with id and reports whether it existed.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[id]
	if !ok {
		return false
	}
	if s.c != nil && def.entryID != 0 {
		s.c.Remove(def.entryID)
	}
	delete(s.defs, id)
	return true
}

// Jobs returns the registered jobs sorted by ID.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.defs))
	for _, id := range s.sortedIDsLocked() {
		jobs = append(jobs, s.defs[id].job)
	}
	return jobs
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Location is the zone of the running clock, nil when stopped.
func (s *Scheduler) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// NextRun reports when the job with id fires next. It is false when the
// scheduler is stopped or the job is unknown.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[id]
	if !ok || s.c == nil {
		return time.Time{}, false
	}
	next, err := s.nextFire(def.job, s.loc, time.Now())
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}

func (s *Scheduler) nextFire(job Job, loc *time.Location, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(s.specFor(job, loc))
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

func (s *Scheduler) armLocked(def *jobDef) error {
	job := def.job
	id, err := s.c.AddFunc(s.specFor(job, s.loc), func() { s.fire(job) })
	if err != nil {
		return err
	}
	def.entryID = id
	return nil
}

func (s *Scheduler) fire(job Job) {
	ctx := context.Background()
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	start := time.Now()
	s.logger.Info("Firing scheduled notification",
		zap.String("job", job.ID),
		zap.String("channel", string(job.Channel)),
		zap.String("run_id", runID))

	if s.notifier != nil {
		s.notifier.Broadcast(ctx, job.Channel, job.Message)
	}

	s.logger.Debug("Scheduled notification done",
		zap.String("job", job.ID),
		zap.String("run_id", runID),
		zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.defs))
	for id := range s.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// cronLogger routes robfig/cron diagnostics into zap. cron's info output is
// per tick, so it goes to debug.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
