package ads

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	err   error
	tries []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tries = append(l.tries, key)
	if l.err != nil {
		return false, l.err
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func newTestSweeper(env *testEnv, locker Locker, cronSpec string) *Sweeper {
	w := NewSweeper(env.svc, env.jobs, locker, cronSpec, time.Minute)
	w.now = env.clock.Now
	return w
}

func TestNextMidnight(t *testing.T) {
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), nextMidnight(fixedNow))
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), nextMidnight(time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nextMidnight(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)))
}

func TestSweeper_MidnightRearms(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	due := env.activeAd("due", func(a *Advertisement) { a.Status = StatusScheduled })

	w := newTestSweeper(env, nil, "")
	require.NoError(t, w.Start(ctx))

	// Start catches up immediately
	assert.Equal(t, StatusActive, env.repo.snapshot(due.ID).Status)

	job, ok := env.jobs.get(sweepJobName)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), job.fireAt)

	late := env.activeAd("late", func(a *Advertisement) {
		a.Status = StatusScheduled
		a.StartDate = fixedNow.Add(6 * time.Hour)
	})

	env.clock.Set(job.fireAt)
	require.NoError(t, env.jobs.fire(ctx, sweepJobName))
	assert.Equal(t, StatusActive, env.repo.snapshot(late.ID).Status)

	next, ok := env.jobs.get(sweepJobName)
	require.True(t, ok, "sweep re-arms for the following midnight")
	assert.Equal(t, time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), next.fireAt)

	w.Stop()
	_, ok = env.jobs.get(sweepJobName)
	assert.False(t, ok)
}

func TestSweeper_EarlyFiringDoesNotDoubleArm(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	w := newTestSweeper(env, nil, "")
	require.NoError(t, w.Start(ctx))

	job, _ := env.jobs.get(sweepJobName)
	env.clock.Set(job.fireAt.Add(-time.Millisecond))
	require.NoError(t, env.jobs.fire(ctx, sweepJobName))

	next, ok := env.jobs.get(sweepJobName)
	require.True(t, ok)
	assert.Equal(t, job.fireAt.AddDate(0, 0, 1), next.fireAt)
}

func TestSweeper_StopPreventsRearm(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	w := newTestSweeper(env, nil, "")
	require.NoError(t, w.Start(ctx))

	job, ok := env.jobs.get(sweepJobName)
	require.True(t, ok)

	w.Stop()
	require.NoError(t, job.job(ctx))
	_, ok = env.jobs.get(sweepJobName)
	assert.False(t, ok)
}

func TestSweeper_Cron(t *testing.T) {
	env := newTestEnv()
	w := newTestSweeper(env, nil, "*/15 * * * *")
	require.NoError(t, w.Start(context.Background()))

	job, ok := env.jobs.get(sweepJobName)
	require.True(t, ok)
	assert.Equal(t, "*/15 * * * *", job.spec)
}

func TestSweeper_Lock(t *testing.T) {
	ctx := context.Background()

	t.Run("held elsewhere skips the sweep", func(t *testing.T) {
		env := newTestEnv()
		due := env.activeAd("due", func(a *Advertisement) { a.Status = StatusScheduled })
		locker := &fakeLocker{held: map[string]bool{"ads:sweep:2024-06-11T10:00": true}}

		w := newTestSweeper(env, locker, "")
		require.NoError(t, w.sweep(ctx))
		assert.Equal(t, StatusScheduled, env.repo.snapshot(due.ID).Status)
		assert.Equal(t, []string{"ads:sweep:2024-06-11T10:00"}, locker.tries)
	})

	t.Run("acquired once per minute", func(t *testing.T) {
		env := newTestEnv()
		due := env.activeAd("due", func(a *Advertisement) { a.Status = StatusScheduled })
		locker := &fakeLocker{}

		w := newTestSweeper(env, locker, "")
		require.NoError(t, w.sweep(ctx))
		assert.Equal(t, StatusActive, env.repo.snapshot(due.ID).Status)

		second := env.activeAd("second", func(a *Advertisement) { a.Status = StatusScheduled })
		require.NoError(t, w.sweep(ctx))
		assert.Equal(t, StatusScheduled, env.repo.snapshot(second.ID).Status, "same minute is already swept")
	})

	t.Run("lock errors fall back to sweeping", func(t *testing.T) {
		env := newTestEnv()
		due := env.activeAd("due", func(a *Advertisement) { a.Status = StatusScheduled })

		w := newTestSweeper(env, &fakeLocker{err: errors.New("redis down")}, "")
		require.NoError(t, w.sweep(ctx))
		assert.Equal(t, StatusActive, env.repo.snapshot(due.ID).Status)
	})
}
