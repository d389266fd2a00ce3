package ads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/shopads/ads-api/internal/domain/admetrics"
	"github.com/shopads/ads-api/internal/domain/customer"
	"github.com/shopads/ads-api/internal/pkg/database"
	"github.com/shopads/ads-api/internal/pkg/metrics"
	"github.com/shopads/ads-api/internal/pkg/scheduler"
)

const (
	defaultDynamicCount = 3
	detailMetricsDays   = 30
	performanceFanout   = 8
)

// MetricsRecorder is the daily rollup the engine writes to and reports from
type MetricsRecorder interface {
	LogInteraction(ctx context.Context, tx *sqlx.Tx, ev admetrics.Interaction) error
	GetPerformanceSummary(ctx context.Context, adID uuid.UUID) (*admetrics.PerformanceSummary, error)
	RecentMetrics(ctx context.Context, adID uuid.UUID, limit int) ([]admetrics.DailyMetrics, error)
}

// AudienceReader looks up the customer behind a selection request
type AudienceReader interface {
	GetAudience(ctx context.Context, id string) (*customer.Audience, error)
}

// JobScheduler registers one-time activation jobs
type JobScheduler interface {
	ScheduleJob(fireAt time.Time, job scheduler.Job, name string) string
	CancelJob(id string) bool
	ActiveJobs() scheduler.Summary
}

// Config tunes selection
type Config struct {
	// NewUserWindow is how long after sign-up a customer counts as new
	NewUserWindow time.Duration
}

// Service manages campaigns, selects ads and accounts interactions
type Service struct {
	repo     Repository
	metrics  MetricsRecorder
	audience AudienceReader
	jobs     JobScheduler
	db       *sqlx.DB
	cfg      Config
	now      func() time.Time
	intn     func(int) int
}

// NewService creates the advertisement service. db may be nil in tests, in
// which case every step runs without a transaction.
func NewService(repo Repository, recorder MetricsRecorder, audience AudienceReader, jobs JobScheduler, db *sqlx.DB, cfg Config) *Service {
	if cfg.NewUserWindow <= 0 {
		cfg.NewUserWindow = 30 * 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		metrics:  recorder,
		audience: audience,
		jobs:     jobs,
		db:       db,
		cfg:      cfg,
		now:      time.Now,
		intn:     rand.Intn,
	}
}

func activationJobName(id uuid.UUID) string {
	return "activate_" + id.String()
}

// Create validates and stores a new campaign. A SCHEDULED campaign starting
// in the future gets an activation job at its start date.
func (s *Service) Create(ctx context.Context, operatorID uuid.UUID, req *CreateRequest) (*Advertisement, error) {
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return nil, ErrInvalidDateRange
	}
	if err := validateContent(req.Type, req.Content); err != nil {
		return nil, err
	}
	if req.Budget != nil && !req.Budget.IsPositive() {
		return nil, ErrInvalidBudget
	}

	now := s.now()
	ad := &Advertisement{
		ID:                uuid.New(),
		Title:             req.Title,
		Description:       nullString(req.Description),
		Type:              req.Type,
		Placement:         req.Placement,
		Content:           types.JSONText(req.Content),
		Status:            StatusDraft,
		StartDate:         req.StartDate,
		ScheduleConfig:    req.ScheduleConfig,
		Priority:          req.Priority,
		MaxImpressions:    nullInt64(req.MaxImpressions),
		MaxClicks:         nullInt64(req.MaxClicks),
		TargetType:        TargetAllUsers,
		TargetConfig:      req.TargetConfig,
		DisplayConditions: req.DisplayConditions,
		IsAbTest:          req.IsAbTest,
		AbTestGroup:       nullString(req.AbTestGroup),
		ProductID:         nullString(req.ProductID),
		CategoryID:        nullString(req.CategoryID),
		BrandID:           nullString(req.BrandID),
		MediaURLs:         pq.StringArray(req.MediaURLs),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Status != "" {
		ad.Status = req.Status
	}
	if req.TargetType != "" {
		ad.TargetType = req.TargetType
	}
	if req.EndDate != nil {
		ad.EndDate = sql.NullTime{Time: *req.EndDate, Valid: true}
	}
	if req.Budget != nil {
		ad.Budget = decimal.NewNullDecimal(*req.Budget)
	}
	if operatorID != uuid.Nil {
		ad.CreatedBy = uuid.NullUUID{UUID: operatorID, Valid: true}
	}
	if ad.MediaURLs == nil {
		ad.MediaURLs = pq.StringArray{}
	}

	if err := s.repo.Create(ctx, ad); err != nil {
		log.Error().Err(err).Str("op", "create").Str("ad_id", ad.ID.String()).Msg("Error creating advertisement")
		return nil, err
	}

	s.syncActivationJob(ad, now)
	return ad, nil
}

// Update applies the non-nil fields of req. Date order and content shape are
// checked against the merged values. The row stays locked from read to write.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateRequest) (*Advertisement, error) {
	var ad *Advertisement
	now := s.now()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		ad, err = s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := applyUpdate(ad, req); err != nil {
			return err
		}
		ad.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, ad, req.Status != nil, req.Budget != nil); err != nil {
			log.Error().Err(err).Str("op", "update").Str("ad_id", id.String()).Msg("Error updating advertisement")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncActivationJob(ad, now)
	return ad, nil
}

// applyUpdate merges the non-nil fields of req into ad
func applyUpdate(ad *Advertisement, req *UpdateRequest) error {
	if req.Title != nil {
		ad.Title = *req.Title
	}
	if req.Description != nil {
		ad.Description = nullString(req.Description)
	}
	if req.Type != nil {
		ad.Type = *req.Type
	}
	if req.Placement != nil {
		ad.Placement = *req.Placement
	}
	if len(req.Content) > 0 {
		if err := validateContent(ad.Type, req.Content); err != nil {
			return err
		}
		ad.Content = types.JSONText(req.Content)
	}
	if req.Status != nil {
		ad.Status = *req.Status
	}
	if req.StartDate != nil {
		ad.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		ad.EndDate = sql.NullTime{Time: *req.EndDate, Valid: true}
	}
	if (req.StartDate != nil || req.EndDate != nil) && ad.EndDate.Valid && !ad.EndDate.Time.After(ad.StartDate) {
		return ErrInvalidDateRange
	}
	if req.ScheduleConfig != nil {
		ad.ScheduleConfig = req.ScheduleConfig
	}
	if req.Priority != nil {
		ad.Priority = *req.Priority
	}
	if req.MaxImpressions != nil {
		ad.MaxImpressions = nullInt64(req.MaxImpressions)
	}
	if req.MaxClicks != nil {
		ad.MaxClicks = nullInt64(req.MaxClicks)
	}
	if req.Budget != nil {
		if !req.Budget.IsPositive() {
			return ErrInvalidBudget
		}
		ad.Budget = decimal.NewNullDecimal(*req.Budget)
	}
	if req.TargetType != nil {
		ad.TargetType = *req.TargetType
	}
	if req.TargetConfig != nil {
		ad.TargetConfig = req.TargetConfig
	}
	if req.DisplayConditions != nil {
		ad.DisplayConditions = req.DisplayConditions
	}
	if req.IsAbTest != nil {
		ad.IsAbTest = *req.IsAbTest
	}
	if req.AbTestGroup != nil {
		ad.AbTestGroup = nullString(req.AbTestGroup)
	}
	if req.ProductID != nil {
		ad.ProductID = nullString(req.ProductID)
	}
	if req.CategoryID != nil {
		ad.CategoryID = nullString(req.CategoryID)
	}
	if req.BrandID != nil {
		ad.BrandID = nullString(req.BrandID)
	}
	if req.MediaURLs != nil {
		ad.MediaURLs = pq.StringArray(req.MediaURLs)
	}
	return nil
}

// syncActivationJob keeps at most one pending activation per campaign
func (s *Service) syncActivationJob(ad *Advertisement, now time.Time) {
	if s.jobs == nil {
		return
	}
	name := activationJobName(ad.ID)
	if ad.Status != StatusScheduled || !ad.StartDate.After(now) {
		s.jobs.CancelJob(name)
		return
	}

	id := ad.ID
	s.jobs.ScheduleJob(ad.StartDate, func(ctx context.Context) error {
		_, err := s.activateScheduledAd(ctx, id)
		return err
	}, name)
	log.Info().Str("ad_id", id.String()).Time("start_date", ad.StartDate).Msg("Scheduled advertisement activation")
}

// activateScheduledAd flips a campaign to ACTIVE if it is still SCHEDULED
func (s *Service) activateScheduledAd(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.TransitionStatus(ctx, nil, id, StatusScheduled, StatusActive)
	if err != nil {
		log.Error().Err(err).Str("op", "activate").Str("ad_id", id.String()).Msg("Error activating scheduled ad")
		return false, err
	}
	if ok {
		metrics.AdStatusTransitions.WithLabelValues(string(StatusActive)).Inc()
		log.Info().Str("ad_id", id.String()).Msg("Activated scheduled ad")
	}
	return ok, nil
}

// FindAll lists campaigns with their performance summaries
func (s *Service) FindAll(ctx context.Context, filter ListFilter) ([]*Response, error) {
	ads, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("op", "find_all").Msg("Error listing advertisements")
		return nil, err
	}

	items := make([]*Response, len(ads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(performanceFanout)
	for i := range ads {
		i := i
		items[i] = ads[i].ToResponse()
		g.Go(func() error {
			summary, err := s.metrics.GetPerformanceSummary(gctx, ads[i].ID)
			if err != nil {
				return fmt.Errorf("performance of %s: %w", ads[i].ID, err)
			}
			items[i].Performance = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("op", "find_all").Msg("Error loading advertisement performance")
		return nil, err
	}

	return items, nil
}

// FindOne returns a campaign with its last 30 daily rows and summary
func (s *Service) FindOne(ctx context.Context, id uuid.UUID) (*DetailResponse, error) {
	ad, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.metrics.RecentMetrics(ctx, id, detailMetricsDays)
	if err != nil {
		log.Error().Err(err).Str("op", "find_one").Str("ad_id", id.String()).Msg("Error loading ad metrics")
		return nil, err
	}
	summary, err := s.metrics.GetPerformanceSummary(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("op", "find_one").Str("ad_id", id.String()).Msg("Error loading ad performance")
		return nil, err
	}

	detail := &DetailResponse{
		Response: *ad.ToResponse(),
		Metrics:  make([]admetrics.DailyPoint, 0, len(rows)),
	}
	detail.Performance = summary
	for i := range rows {
		detail.Metrics = append(detail.Metrics, rows[i].Point())
	}
	return detail, nil
}

// FindActive returns the eligible campaigns for a placement, best first
func (s *Service) FindActive(ctx context.Context, placement, userID string, sc *SelectionContext) ([]Advertisement, error) {
	return s.selectAds(ctx, placement, userID, sc, false)
}

// GetDynamicAds re-ranks the eligible campaigns by page relevance and keeps
// the top count (3 when count is not positive).
func (s *Service) GetDynamicAds(ctx context.Context, placement string, count int, userID string, sc *SelectionContext) ([]Advertisement, error) {
	if count <= 0 {
		count = defaultDynamicCount
	}
	ads, err := s.selectAds(ctx, placement, userID, sc, true)
	if err != nil {
		return nil, err
	}
	if len(ads) > count {
		ads = ads[:count]
	}
	return ads, nil
}

func (s *Service) selectAds(ctx context.Context, placement, userID string, sc *SelectionContext, dynamic bool) ([]Advertisement, error) {
	now := s.now()

	candidates, err := s.repo.ListCandidates(ctx, placement, now)
	if err != nil {
		log.Error().Err(err).Str("op", "select").Str("placement", placement).Msg("Error loading candidate ads")
		return nil, err
	}
	if len(candidates) == 0 {
		return []Advertisement{}, nil
	}

	who, err := s.resolveAudience(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	eligible := make([]Advertisement, 0, len(candidates))
	for i := range candidates {
		ad := &candidates[i]
		if !matchesTarget(ad, who) {
			continue
		}
		if !matchesContext(ad.DisplayConditions, sc) {
			continue
		}
		if !matchesSchedule(ad.ScheduleConfig, now) {
			continue
		}
		if ad.CapsReached() {
			continue
		}
		eligible = append(eligible, *ad)
	}

	if dynamic && sc != nil {
		applyContextualScoring(eligible, sc)
	}

	result := resolveABTests(eligible, userID, s.intn)
	sortByPriority(result)
	return result, nil
}

// resolveAudience loads the targeting profile. Unknown customers are
// treated like anonymous visitors.
func (s *Service) resolveAudience(ctx context.Context, userID string, now time.Time) (audience, error) {
	who := audience{userID: userID, now: now, window: s.cfg.NewUserWindow}
	if userID == "" || s.audience == nil {
		return who, nil
	}

	profile, err := s.audience.GetAudience(ctx, userID)
	if errors.Is(err, customer.ErrCustomerNotFound) {
		return who, nil
	}
	if err != nil {
		log.Error().Err(err).Str("op", "select").Str("user_id", userID).Msg("Error loading customer audience")
		return who, err
	}
	who.profile = profile
	return who, nil
}

// Remove deletes a campaign and drops its pending activation
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, ErrAdNotFound) {
			log.Error().Err(err).Str("op", "remove").Str("ad_id", id.String()).Msg("Error deleting advertisement")
		}
		return err
	}
	if s.jobs != nil {
		s.jobs.CancelJob(activationJobName(id))
	}
	return nil
}

// UpdateStatus sets the campaign status
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Advertisement, error) {
	switch status {
	case StatusDraft, StatusScheduled, StatusActive, StatusPaused, StatusEnded:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		if !errors.Is(err, ErrAdNotFound) {
			log.Error().Err(err).Str("op", "update_status").Str("ad_id", id.String()).Msg("Error updating advertisement status")
		}
		return nil, err
	}

	ad, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.AdStatusTransitions.WithLabelValues(string(status)).Inc()
	s.syncActivationJob(ad, s.now())
	return ad, nil
}

type interactionOutcome struct {
	charged decimal.Decimal
	paused  bool
}

// LogInteraction counts ev against the campaign, charges its fixed cost when
// the remaining budget covers it, records the daily rollup and pauses the
// campaign once a cap is reached. All of it commits or none of it does.
func (s *Service) LogInteraction(ctx context.Context, ev admetrics.Interaction) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInteraction, ev.Type)
	}
	// Cost is derived here, never taken from the caller
	ev.Metadata.Cost = decimal.NullDecimal{}

	var out interactionOutcome
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		out, err = s.logInteraction(ctx, tx, ev)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrAdNotFound) {
			log.Error().Err(err).Str("op", "log_interaction").Str("ad_id", ev.AdvertisementID.String()).Msg("Error logging ad interaction")
		}
		return err
	}

	metrics.AdInteractions.WithLabelValues(string(ev.Type)).Inc()
	if out.charged.IsPositive() {
		metrics.AdBudgetSpent.Add(out.charged.InexactFloat64())
	}
	if out.paused {
		metrics.AdAutoPaused.Inc()
		metrics.AdStatusTransitions.WithLabelValues(string(StatusPaused)).Inc()
		log.Info().Str("ad_id", ev.AdvertisementID.String()).Msg("Paused advertisement after reaching a cap")
	}
	return nil
}

func (s *Service) logInteraction(ctx context.Context, tx *sqlx.Tx, ev admetrics.Interaction) (interactionOutcome, error) {
	var out interactionOutcome

	ad, err := s.repo.GetForUpdate(ctx, tx, ev.AdvertisementID)
	if err != nil {
		return out, err
	}

	counters, err := s.repo.IncrementCounter(ctx, tx, ad.ID, ev.Type)
	if err != nil {
		return out, err
	}

	budget := ad.Budget
	cost := InteractionCost(ev.Type)
	if budget.Valid && budget.Decimal.IsPositive() && budget.Decimal.GreaterThanOrEqual(cost) {
		remaining, ok, err := s.repo.DeductBudget(ctx, tx, ad.ID, cost)
		if err != nil {
			return out, err
		}
		if ok {
			budget = decimal.NewNullDecimal(remaining)
			ev.Metadata.Cost = decimal.NewNullDecimal(cost)
			out.charged = cost
		}
	}

	if err := s.metrics.LogInteraction(ctx, tx, ev); err != nil {
		return out, err
	}

	after := *ad
	after.Impressions = counters.Impressions
	after.Clicks = counters.Clicks
	after.Conversions = counters.Conversions
	after.Budget = budget

	if ad.Status == StatusActive && after.CapsReached() {
		paused, err := s.repo.TransitionStatus(ctx, tx, ad.ID, StatusActive, StatusPaused)
		if err != nil {
			return out, err
		}
		out.paused = paused
	}

	return out, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return database.WithTx(ctx, s.db, fn)
}

// ProcessScheduledAds activates every SCHEDULED campaign whose start has
// passed and ends every ACTIVE campaign whose end has passed. A failing
// campaign is logged and skipped.
func (s *Service) ProcessScheduledAds(ctx context.Context) (ProcessResult, error) {
	var result ProcessResult
	now := s.now()

	due, err := s.repo.ListDueForActivation(ctx, now)
	if err != nil {
		log.Error().Err(err).Str("op", "sweep").Msg("Error listing ads due for activation")
		return result, err
	}
	for _, id := range due {
		ok, err := s.activateScheduledAd(ctx, id)
		if err != nil {
			result.Failed++
			continue
		}
		if ok {
			result.Activated++
		}
		if s.jobs != nil {
			s.jobs.CancelJob(activationJobName(id))
		}
	}

	ending, err := s.repo.ListDueForEnding(ctx, now)
	if err != nil {
		log.Error().Err(err).Str("op", "sweep").Msg("Error listing ads due for ending")
		return result, err
	}
	for _, id := range ending {
		ok, err := s.repo.TransitionStatus(ctx, nil, id, StatusActive, StatusEnded)
		if err != nil {
			log.Error().Err(err).Str("op", "end").Str("ad_id", id.String()).Msg("Error ending ad")
			result.Failed++
			continue
		}
		if ok {
			result.Ended++
			metrics.AdStatusTransitions.WithLabelValues(string(StatusEnded)).Inc()
		}
	}

	log.Info().
		Int("activated", result.Activated).
		Int("ended", result.Ended).
		Int("failed", result.Failed).
		Msg("Processed scheduled ads")
	return result, nil
}

// ActiveJobs lists the scheduler's pending registrations
func (s *Service) ActiveJobs() scheduler.Summary {
	if s.jobs == nil {
		return scheduler.Summary{OneTimeJobs: []string{}, RecurringJobs: []scheduler.RecurringJob{}}
	}
	return s.jobs.ActiveJobs()
}

// validateContent checks the type-specific creative payload. Types other
// than banner, carousel and popup are not inspected.
func validateContent(t AdType, raw json.RawMessage) error {
	var content map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &content); err != nil {
			return fmt.Errorf("%w: content must be a JSON object", ErrInvalidContent)
		}
	}

	switch t {
	case TypeBanner:
		if !present(content["imageUrl"]) {
			return fmt.Errorf("%w: Banner ads require an imageUrl in content", ErrInvalidContent)
		}
	case TypeCarousel:
		slides, _ := content["slides"].([]interface{})
		if len(slides) < 2 {
			return fmt.Errorf("%w: Carousel ads require at least 2 slides", ErrInvalidContent)
		}
	case TypePopup:
		if !present(content["title"]) || !present(content["body"]) {
			return fmt.Errorf("%w: Popup ads require title and body in content", ErrInvalidContent)
		}
	}
	return nil
}

func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	}
	return true
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
