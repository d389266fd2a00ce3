package ads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/shopads/ads-api/internal/domain/admetrics"
	"github.com/shopads/ads-api/internal/domain/customer"
	"github.com/shopads/ads-api/internal/pkg/scheduler"
)

type fakeRepo struct {
	mu             sync.Mutex
	ads            map[uuid.UUID]*Advertisement
	failTransition map[uuid.UUID]error
	beforeUpdate   func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		ads:            make(map[uuid.UUID]*Advertisement),
		failTransition: make(map[uuid.UUID]error),
	}
}

func (f *fakeRepo) put(ad *Advertisement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ad
	f.ads[ad.ID] = &cp
}

func (f *fakeRepo) snapshot(id uuid.UUID) Advertisement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.ads[id]
}

func (f *fakeRepo) Create(ctx context.Context, ad *Advertisement) error {
	f.put(ad)
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Advertisement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ad, ok := f.ads[id]
	if !ok {
		return nil, ErrAdNotFound
	}
	cp := *ad
	return &cp, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Advertisement, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRepo) Update(ctx context.Context, tx *sqlx.Tx, ad *Advertisement, setStatus, setBudget bool) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.ads[ad.ID]
	if !ok {
		return ErrAdNotFound
	}
	cp := *ad
	cp.Impressions, cp.Clicks, cp.Conversions = cur.Impressions, cur.Clicks, cur.Conversions
	if !setStatus {
		cp.Status = cur.Status
	}
	if !setBudget {
		cp.Budget = cur.Budget
	}
	f.ads[ad.ID] = &cp
	ad.Status, ad.Budget = cp.Status, cp.Budget
	ad.Impressions, ad.Clicks, ad.Conversions = cp.Impressions, cp.Clicks, cp.Conversions
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ads[id]; !ok {
		return ErrAdNotFound
	}
	delete(f.ads, id)
	return nil
}

func (f *fakeRepo) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ad, ok := f.ads[id]
	if !ok {
		return ErrAdNotFound
	}
	ad.Status = status
	return nil
}

func (f *fakeRepo) TransitionStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failTransition[id]; err != nil {
		return false, err
	}
	ad, ok := f.ads[id]
	if !ok || ad.Status != from {
		return false, nil
	}
	ad.Status = to
	return true, nil
}

func (f *fakeRepo) List(ctx context.Context, filter ListFilter) ([]Advertisement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Advertisement
	for _, ad := range f.ads {
		if filter.Status != nil && ad.Status != *filter.Status {
			continue
		}
		if filter.Placement != nil && ad.Placement != *filter.Placement {
			continue
		}
		out = append(out, *ad)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (f *fakeRepo) ListCandidates(ctx context.Context, placement string, now time.Time) ([]Advertisement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Advertisement
	for _, ad := range f.ads {
		if ad.Status != StatusActive || ad.Placement != placement || ad.StartDate.After(now) {
			continue
		}
		if ad.EndDate.Valid && ad.EndDate.Time.Before(now) {
			continue
		}
		out = append(out, *ad)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (f *fakeRepo) listIDs(match func(*Advertisement) bool) []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, ad := range f.ads {
		if match(ad) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeRepo) ListDueForActivation(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return f.listIDs(func(ad *Advertisement) bool {
		return ad.Status == StatusScheduled && !ad.StartDate.After(now)
	}), nil
}

func (f *fakeRepo) ListDueForEnding(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return f.listIDs(func(ad *Advertisement) bool {
		return ad.Status == StatusActive && ad.EndDate.Valid && !ad.EndDate.Time.After(now)
	}), nil
}

func (f *fakeRepo) IncrementCounter(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, t admetrics.InteractionType) (Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ad, ok := f.ads[id]
	if !ok {
		return Counters{}, ErrAdNotFound
	}
	switch t {
	case admetrics.InteractionImpression:
		ad.Impressions++
	case admetrics.InteractionClick:
		ad.Clicks++
	case admetrics.InteractionConversion:
		ad.Conversions++
	}
	return Counters{Impressions: ad.Impressions, Clicks: ad.Clicks, Conversions: ad.Conversions}, nil
}

// DeductBudget mirrors the conditional UPDATE: it only succeeds when the
// stored budget covers cost at the moment of the write.
func (f *fakeRepo) DeductBudget(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, cost decimal.Decimal) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ad, ok := f.ads[id]
	if !ok {
		return decimal.Zero, false, ErrAdNotFound
	}
	if !ad.Budget.Valid || !ad.Budget.Decimal.IsPositive() || ad.Budget.Decimal.LessThan(cost) {
		return decimal.Zero, false, nil
	}
	ad.Budget = decimal.NewNullDecimal(ad.Budget.Decimal.Sub(cost))
	return ad.Budget.Decimal, true, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []admetrics.Interaction
}

func (f *fakeRecorder) LogInteraction(ctx context.Context, tx *sqlx.Tx, ev admetrics.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRecorder) GetPerformanceSummary(ctx context.Context, adID uuid.UUID) (*admetrics.PerformanceSummary, error) {
	return &admetrics.PerformanceSummary{DailyData: []admetrics.DailyPoint{}}, nil
}

func (f *fakeRecorder) RecentMetrics(ctx context.Context, adID uuid.UUID, limit int) ([]admetrics.DailyMetrics, error) {
	return nil, nil
}

func (f *fakeRecorder) charged() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := decimal.Zero
	for _, ev := range f.events {
		if ev.Metadata.Cost.Valid {
			total = total.Add(ev.Metadata.Cost.Decimal)
		}
	}
	return total
}

type fakeAudience map[string]*customer.Audience

func (f fakeAudience) GetAudience(ctx context.Context, id string) (*customer.Audience, error) {
	a, ok := f[id]
	if !ok {
		return nil, customer.ErrCustomerNotFound
	}
	return a, nil
}

type pendingJob struct {
	fireAt time.Time
	job    scheduler.Job
	spec   string
}

// fakeJobs records registrations; tests fire them by hand
type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]pendingJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]pendingJob)}
}

func (f *fakeJobs) ScheduleJob(fireAt time.Time, job scheduler.Job, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[name] = pendingJob{fireAt: fireAt, job: job}
	return name
}

func (f *fakeJobs) ScheduleRecurringJob(spec string, job scheduler.Job, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[name] = pendingJob{spec: spec, job: job}
	return name, nil
}

func (f *fakeJobs) CancelJob(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[id]
	delete(f.jobs, id)
	return ok
}

func (f *fakeJobs) ActiveJobs() scheduler.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := scheduler.Summary{OneTimeJobs: []string{}, RecurringJobs: []scheduler.RecurringJob{}}
	for name, j := range f.jobs {
		if j.spec != "" {
			s.RecurringJobs = append(s.RecurringJobs, scheduler.RecurringJob{Name: name, CronTime: j.spec})
		} else {
			s.OneTimeJobs = append(s.OneTimeJobs, name)
		}
	}
	sort.Strings(s.OneTimeJobs)
	s.Total = len(s.OneTimeJobs) + len(s.RecurringJobs)
	return s
}

func (f *fakeJobs) get(name string) (pendingJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[name]
	return j, ok
}

// fire deregisters and runs a one-time job the way the scheduler does
func (f *fakeJobs) fire(ctx context.Context, name string) error {
	f.mu.Lock()
	j, ok := f.jobs[name]
	if ok && j.spec == "" {
		delete(f.jobs, name)
	}
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return j.job(ctx)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	repo     *fakeRepo
	recorder *fakeRecorder
	audience fakeAudience
	jobs     *fakeJobs
	clock    *testClock
	svc      *Service
}

// Tuesday
var fixedNow = time.Date(2024, 6, 11, 10, 0, 0, 0, time.UTC)

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newFakeRepo(),
		recorder: &fakeRecorder{},
		audience: fakeAudience{},
		jobs:     newFakeJobs(),
		clock:    &testClock{now: fixedNow},
	}
	env.svc = NewService(env.repo, env.recorder, env.audience, env.jobs, nil, Config{NewUserWindow: 30 * 24 * time.Hour})
	env.svc.now = env.clock.Now
	env.svc.intn = func(n int) int { return n - 1 }
	return env
}

// activeAd seeds a running campaign on placement "home"
func (env *testEnv) activeAd(title string, mutate func(*Advertisement)) *Advertisement {
	ad := &Advertisement{
		ID:         uuid.New(),
		Title:      title,
		Type:       TypeNative,
		Placement:  "home",
		Content:    []byte(`{}`),
		Status:     StatusActive,
		StartDate:  fixedNow.AddDate(0, 0, -1),
		Priority:   1,
		TargetType: TargetAllUsers,
		CreatedAt:  fixedNow,
		UpdatedAt:  fixedNow,
	}
	if mutate != nil {
		mutate(ad)
	}
	env.repo.put(ad)
	return ad
}
