package ads

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shopads/ads-api/internal/pkg/scheduler"
)

const (
	sweepJobName   = "ads_midnight_sweep"
	sweepLockKey   = "ads:sweep:"
	sweepTimeout   = 5 * time.Minute
	defaultLockTTL = 10 * time.Minute
)

// Locker grants short-lived exclusive locks across instances
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SweepScheduler is the part of the scheduler the sweeper drives
type SweepScheduler interface {
	ScheduleJob(fireAt time.Time, job scheduler.Job, name string) string
	ScheduleRecurringJob(spec string, job scheduler.Job, name string) (string, error)
	CancelJob(id string) bool
}

// Sweeper runs ProcessScheduledAds at every local midnight, or on a cron
// expression when one is configured.
type Sweeper struct {
	service  *Service
	jobs     SweepScheduler
	locker   Locker
	cronSpec string
	lockTTL  time.Duration
	now      func() time.Time
	stopped  atomic.Bool
}

// NewSweeper creates the lifecycle sweeper. A nil locker sweeps unlocked.
func NewSweeper(service *Service, jobs SweepScheduler, locker Locker, cronSpec string, lockTTL time.Duration) *Sweeper {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Sweeper{
		service:  service,
		jobs:     jobs,
		locker:   locker,
		cronSpec: cronSpec,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

// Start sweeps once to catch up on transitions missed while the process
// was down, then registers the periodic sweep.
func (w *Sweeper) Start(ctx context.Context) error {
	log.Info().Msg("Starting ads sweep worker...")

	if err := w.sweep(ctx); err != nil {
		log.Error().Err(err).Msg("Initial ads sweep failed")
	}

	if w.cronSpec != "" {
		_, err := w.jobs.ScheduleRecurringJob(w.cronSpec, w.sweep, sweepJobName)
		return err
	}

	w.armMidnight(w.now())
	return nil
}

// Stop cancels the pending sweep
func (w *Sweeper) Stop() {
	log.Info().Msg("Stopping ads sweep worker...")
	w.stopped.Store(true)
	w.jobs.CancelJob(sweepJobName)
}

func (w *Sweeper) armMidnight(after time.Time) {
	if w.stopped.Load() {
		return
	}

	now := w.now()
	if now.Before(after) {
		now = after
	}
	next := nextMidnight(now)

	w.jobs.ScheduleJob(next, func(ctx context.Context) error {
		defer w.armMidnight(next)
		return w.sweep(ctx)
	}, sweepJobName)
}

func (w *Sweeper) sweep(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if w.locker != nil {
		key := sweepLockKey + w.now().Truncate(time.Minute).Format("2006-01-02T15:04")
		ok, err := w.locker.TryLock(ctx, key, w.lockTTL)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Sweep lock unavailable, sweeping anyway")
		} else if !ok {
			log.Debug().Str("key", key).Msg("Ads sweep already running on another instance")
			return nil
		}
	}

	_, err := w.service.ProcessScheduledAds(ctx)
	return err
}

// nextMidnight is the first local midnight strictly after t
func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
