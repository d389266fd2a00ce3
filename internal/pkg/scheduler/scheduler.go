// Package scheduler runs callbacks at a wall-clock instant or on a cron
// schedule. Jobs live in process memory only: a restart drops every pending
// registration and missed firings are never replayed.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/shopads/ads-api/internal/pkg/metrics"
)

const (
	kindOnce      = "once"
	kindRecurring = "recurring"
)

// Job is the unit of work. Returned errors and panics are logged and never
// reach the scheduler's bookkeeping.
type Job func(ctx context.Context) error

// RecurringJob describes a registered cron job
type RecurringJob struct {
	Name     string    `json:"name"`
	CronTime string    `json:"cron_time"`
	Running  bool      `json:"running"`
	NextRun  time.Time `json:"next_run"`
}

// Summary lists what is currently registered
type Summary struct {
	OneTimeJobs   []string       `json:"one_time_jobs"`
	RecurringJobs []RecurringJob `json:"recurring_jobs"`
	Total         int            `json:"total"`
}

type oneTimeJob struct {
	timer  *time.Timer
	fireAt time.Time
	job    Job
}

type recurringJob struct {
	entryID cron.EntryID
	spec    string
}

// Scheduler owns its timers and cron runner; create one with New and
// release it with Shutdown.
type Scheduler struct {
	mu        sync.Mutex
	timers    map[string]*oneTimeJob
	recurring map[string]*recurringJob
	seq       int
	closed    bool

	cron   *cron.Cron
	parser cron.Parser
	now    func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*options)

type options struct {
	now      func() time.Time
	location *time.Location
}

// WithClock overrides the wall clock used to decide whether a one-time job is due
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the time zone cron expressions are evaluated in
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// New creates a started scheduler
func New(opts ...Option) *Scheduler {
	o := options{now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	// Five-field expressions plus an optional leading seconds field and @descriptors
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		timers:    make(map[string]*oneTimeJob),
		recurring: make(map[string]*recurringJob),
		cron:      cron.New(cron.WithParser(parser), cron.WithLocation(o.location)),
		parser:    parser,
		now:       o.now,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.cron.Start()

	log.Info().Msg("Scheduler initialized")
	return s
}

// ScheduleJob runs job once at fireAt and returns its id (name, or a generated
// job_N). A fireAt that is not in the future runs job synchronously before
// returning. Registering an id that is already pending replaces the old timer.
func (s *Scheduler) ScheduleJob(fireAt time.Time, job Job, name string) string {
	s.mu.Lock()
	s.seq++
	id := name
	if id == "" {
		id = fmt.Sprintf("job_%d", s.seq)
	}

	if s.closed {
		s.mu.Unlock()
		log.Warn().Str("job_id", id).Msg("Scheduler is shut down, job dropped")
		return id
	}

	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
		delete(s.timers, id)
		log.Debug().Str("job_id", id).Msg("Replacing pending job")
	}

	delay := fireAt.Sub(s.now())
	if delay <= 0 {
		s.updateGauges()
		s.mu.Unlock()
		log.Warn().Str("job_id", id).Time("fire_at", fireAt).Msg("Job scheduled for past date, executing immediately")
		s.run(id, kindOnce, job)
		return id
	}

	entry := &oneTimeJob{fireAt: fireAt, job: job}
	entry.timer = time.AfterFunc(delay, func() { s.fire(id, entry) })
	s.timers[id] = entry
	s.updateGauges()
	s.mu.Unlock()

	log.Debug().Str("job_id", id).Dur("delay", delay).Msg("Scheduled one-time job")
	return id
}

// fire deregisters the job before running it so the callback may register a
// successor under the same id.
func (s *Scheduler) fire(id string, entry *oneTimeJob) {
	s.mu.Lock()
	if s.closed || s.timers[id] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.updateGauges()
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	s.run(id, kindOnce, entry.job)
}

// ScheduleRecurringJob registers job on a cron expression and returns its id
// (name, or a generated recurring_job_N).
func (s *Scheduler) ScheduleRecurringJob(spec string, job Job, name string) (string, error) {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		log.Error().Err(err).Str("cron", spec).Msg("Invalid cron expression")
		return "", fmt.Errorf("parse cron expression %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := name
	if id == "" {
		id = fmt.Sprintf("recurring_job_%d", s.seq)
	}
	if s.closed {
		log.Warn().Str("job_id", id).Msg("Scheduler is shut down, recurring job dropped")
		return id, nil
	}

	if prev, ok := s.recurring[id]; ok {
		s.cron.Remove(prev.entryID)
	}

	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.run(id, kindRecurring, job)
	}))
	s.recurring[id] = &recurringJob{entryID: entryID, spec: spec}
	s.updateGauges()

	log.Debug().Str("job_id", id).Str("cron", spec).Msg("Scheduled recurring job")
	return id, nil
}

// CancelJob stops a pending one-time job or a recurring job.
// It reports whether anything was cancelled.
func (s *Scheduler) CancelJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[id]; ok {
		entry.timer.Stop()
		delete(s.timers, id)
		s.updateGauges()
		log.Debug().Str("job_id", id).Msg("Canceled one-time job")
		return true
	}

	if entry, ok := s.recurring[id]; ok {
		s.cron.Remove(entry.entryID)
		delete(s.recurring, id)
		s.updateGauges()
		log.Debug().Str("job_id", id).Msg("Canceled recurring job")
		return true
	}

	log.Warn().Str("job_id", id).Msg("Attempted to cancel non-existent job")
	return false
}

// ActiveJobs returns the pending one-time ids and the recurring jobs, both sorted by id
func (s *Scheduler) ActiveJobs() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		OneTimeJobs:   make([]string, 0, len(s.timers)),
		RecurringJobs: make([]RecurringJob, 0, len(s.recurring)),
	}
	for id := range s.timers {
		summary.OneTimeJobs = append(summary.OneTimeJobs, id)
	}
	sort.Strings(summary.OneTimeJobs)

	for id, entry := range s.recurring {
		summary.RecurringJobs = append(summary.RecurringJobs, RecurringJob{
			Name:     id,
			CronTime: entry.spec,
			Running:  !s.closed,
			NextRun:  s.cron.Entry(entry.entryID).Next,
		})
	}
	sort.Slice(summary.RecurringJobs, func(i, j int) bool {
		return summary.RecurringJobs[i].Name < summary.RecurringJobs[j].Name
	})

	summary.Total = len(summary.OneTimeJobs) + len(summary.RecurringJobs)
	return summary
}

// Shutdown clears every pending timer, stops the cron runner and waits for
// in-flight callbacks until ctx is done. Jobs are not persisted.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	log.Info().Int("one_time", len(s.timers)).Int("recurring", len(s.recurring)).Msg("Cleaning up scheduler resources")
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	for id, entry := range s.recurring {
		s.cron.Remove(entry.entryID)
		delete(s.recurring, id)
	}
	s.updateGauges()
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		<-cronDone.Done()
		close(done)
	}()

	defer s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(id, kind string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("job_id", id).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Scheduled job panicked")
			metrics.SchedulerJobRuns.WithLabelValues(kind, "panic").Inc()
		}
	}()

	log.Debug().Str("job_id", id).Str("kind", kind).Msg("Executing scheduled job")
	if err := job(s.ctx); err != nil {
		log.Error().Err(err).Str("job_id", id).Str("kind", kind).Msg("Error executing scheduled job")
		metrics.SchedulerJobRuns.WithLabelValues(kind, "error").Inc()
		return
	}
	metrics.SchedulerJobRuns.WithLabelValues(kind, "ok").Inc()
}

// updateGauges must be called with mu held
func (s *Scheduler) updateGauges() {
	metrics.SchedulerActiveJobs.WithLabelValues(kindOnce).Set(float64(len(s.timers)))
	metrics.SchedulerActiveJobs.WithLabelValues(kindRecurring).Set(float64(len(s.recurring)))
}
