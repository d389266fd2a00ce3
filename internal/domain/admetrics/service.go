package admetrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shopads/ads-api/internal/pkg/database"
)

const (
	summaryWindowDays = 30
	trendWindowDays   = 7
)

// Service maintains daily rollups and derives reporting from them
type Service struct {
	store Store
	db    *sqlx.DB
	now   func() time.Time
}

// NewService creates a metrics service. db may be nil when every write is
// made inside a caller-owned transaction.
func NewService(store Store, db *sqlx.DB) *Service {
	return &Service{
		store: store,
		db:    db,
		now:   time.Now,
	}
}

// LogInteraction records ev in today's row. With a nil tx the write runs in
// its own transaction; otherwise it joins the caller's.
func (s *Service) LogInteraction(ctx context.Context, tx *sqlx.Tx, ev Interaction) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownInteraction, ev.Type)
	}
	if tx == nil && s.db != nil {
		return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
			return s.logInteraction(ctx, tx, ev)
		})
	}
	return s.logInteraction(ctx, tx, ev)
}

func (s *Service) logInteraction(ctx context.Context, tx *sqlx.Tx, ev Interaction) error {
	now := s.now()
	day := CalendarDay(now)

	row, err := s.store.GetDayForUpdate(ctx, tx, ev.AdvertisementID, day)
	if err != nil {
		log.Error().Err(err).Str("ad_id", ev.AdvertisementID.String()).Msg("Error logging ad metrics: load day")
		return err
	}

	if row == nil {
		created := applyInteraction(nil, ev, day, now)
		inserted, err := s.store.InsertDay(ctx, tx, created)
		if err != nil {
			log.Error().Err(err).Str("ad_id", ev.AdvertisementID.String()).Msg("Error logging ad metrics: insert day")
			return err
		}
		if inserted {
			return nil
		}

		// Lost the race for the first row of the day: lock the winner's row and update it
		row, err = s.store.GetDayForUpdate(ctx, tx, ev.AdvertisementID, day)
		if err != nil {
			log.Error().Err(err).Str("ad_id", ev.AdvertisementID.String()).Msg("Error logging ad metrics: reload day")
			return err
		}
		if row == nil {
			return fmt.Errorf("metrics row for %s on %s vanished", ev.AdvertisementID, day.Format(dateLayout))
		}
	}

	if err := s.store.UpdateDay(ctx, tx, applyInteraction(row, ev, day, now)); err != nil {
		log.Error().Err(err).Str("ad_id", ev.AdvertisementID.String()).Msg("Error logging ad metrics: update day")
		return err
	}
	return nil
}

// GetPerformanceSummary aggregates the trailing 30 days for an advertisement
func (s *Service) GetPerformanceSummary(ctx context.Context, adID uuid.UUID) (*PerformanceSummary, error) {
	_, summary, err := s.performance(ctx, adID)
	return summary, err
}

func (s *Service) performance(ctx context.Context, adID uuid.UUID) (*AdSnapshot, *PerformanceSummary, error) {
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		if !errors.Is(err, ErrAdNotFound) {
			log.Error().Err(err).Str("ad_id", adID.String()).Msg("Error getting performance summary")
		}
		return nil, nil, err
	}

	today := CalendarDay(s.now())
	rows, err := s.store.ListSince(ctx, adID, today.AddDate(0, 0, -summaryWindowDays))
	if err != nil {
		log.Error().Err(err).Str("ad_id", adID.String()).Msg("Error getting performance summary")
		return nil, nil, err
	}

	return ad, summarize(ad, rows, today), nil
}

// RecentMetrics returns up to limit daily rows, newest first
func (s *Service) RecentMetrics(ctx context.Context, adID uuid.UUID, limit int) ([]DailyMetrics, error) {
	rows, err := s.store.ListRecent(ctx, adID, limit)
	if err != nil {
		log.Error().Err(err).Str("ad_id", adID.String()).Msg("Error listing recent metrics")
		return nil, err
	}
	return rows, nil
}

func summarize(ad *AdSnapshot, rows []DailyMetrics, today time.Time) *PerformanceSummary {
	var t Totals
	days := make(map[string]struct{}, len(rows))
	for i := range rows {
		m := &rows[i]
		t.TotalImpressions += m.Impressions
		t.TotalClicks += m.Clicks
		t.TotalConversions += m.Conversions
		t.TotalRevenue = t.TotalRevenue.Add(m.Revenue.Decimal)
		t.TotalCost = t.TotalCost.Add(m.Cost.Decimal)
		days[m.Date.Format(dateLayout)] = struct{}{}
	}

	cost := t.TotalCost.InexactFloat64()
	if t.TotalImpressions > 0 {
		t.OverallCTR = float64(t.TotalClicks) / float64(t.TotalImpressions) * 100
		t.CPM = cost / float64(t.TotalImpressions) * 1000
	}
	if t.TotalClicks > 0 {
		t.ConversionRate = float64(t.TotalConversions) / float64(t.TotalClicks) * 100
		t.CPC = cost / float64(t.TotalClicks)
	}
	if t.TotalCost.IsPositive() {
		t.ROI = (t.TotalRevenue.Div(t.TotalCost).InexactFloat64() - 1) * 100
	}

	var avg Averages
	if n := float64(len(days)); n > 0 {
		avg.Impressions = float64(t.TotalImpressions) / n
		avg.Clicks = float64(t.TotalClicks) / n
		avg.Conversions = float64(t.TotalConversions) / n
	}

	summary := &PerformanceSummary{
		Summary:      t,
		Averages:     avg,
		Trends:       trends(rows, today),
		Demographics: aggregateDemographics(rows),
		DailyData:    dailySeries(rows),
		ReachedLimits: ReachedLimits{
			Budget:      ad.Budget.Valid && !ad.Budget.Decimal.IsPositive(),
			Impressions: ad.MaxImpressions.Valid && ad.Impressions >= ad.MaxImpressions.Int64,
			Clicks:      ad.MaxClicks.Valid && ad.Clicks >= ad.MaxClicks.Int64,
		},
	}
	return summary
}

func trends(rows []DailyMetrics, today time.Time) Trends {
	lastStart := today.AddDate(0, 0, -trendWindowDays)
	prevStart := today.AddDate(0, 0, -2*trendWindowDays)

	var lastImp, lastClk, prevImp, prevClk int64
	for i := range rows {
		d := rows[i].Date
		switch {
		case !d.Before(lastStart):
			lastImp += rows[i].Impressions
			lastClk += rows[i].Clicks
		case !d.Before(prevStart):
			prevImp += rows[i].Impressions
			prevClk += rows[i].Clicks
		}
	}

	return Trends{
		Impressions: percentChange(lastImp, prevImp),
		Clicks:      percentChange(lastClk, prevClk),
	}
}

func percentChange(current, previous int64) float64 {
	if previous <= 0 {
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func aggregateDemographics(rows []DailyMetrics) Demographics {
	d := Demographics{
		AgeGroups: Counts{},
		Genders:   Counts{},
		Locations: Counts{},
		Devices:   Counts{},
	}
	for i := range rows {
		d.Merge(rows[i].Demographics)
	}
	return d
}

func dailySeries(rows []DailyMetrics) []DailyPoint {
	byDate := make(map[string]int, len(rows))
	series := make([]DailyPoint, 0, len(rows))
	for i := range rows {
		p := rows[i].Point()
		if idx, ok := byDate[p.Date]; ok {
			series[idx] = p
			continue
		}
		byDate[p.Date] = len(series)
		series = append(series, p)
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	return series
}

// GetAdCampaignComparison summarizes every id in parallel and ranks them
func (s *Service) GetAdCampaignComparison(ctx context.Context, adIDs []uuid.UUID) (*Comparison, error) {
	if len(adIDs) == 0 {
		return nil, ErrNoAdsToCompare
	}

	ads := make([]ComparedAd, len(adIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range adIDs {
		i, id := i, id
		g.Go(func() error {
			ad, summary, err := s.performance(gctx, id)
			if err != nil {
				return err
			}
			ads[i] = ComparedAd{
				ID:          ad.ID.String(),
				Title:       ad.Title,
				Type:        ad.Type,
				Status:      ad.Status,
				StartDate:   ad.StartDate,
				Performance: summary.Summary,
			}
			if ad.EndDate.Valid {
				end := ad.EndDate.Time
				ads[i].EndDate = &end
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Int("ads", len(adIDs)).Msg("Error comparing ad campaigns")
		return nil, err
	}

	result := &Comparison{Ads: ads}
	result.Comparison.BestPerformer = bestPerformer(ads)
	result.Comparison.Metrics = compareMetrics(ads)
	return result, nil
}

// comparedMetrics are the keys averaged across campaigns, in report order
var comparedMetrics = []string{"overall_ctr", "conversion_rate", "cpc", "cpm", "roi"}

func (t Totals) metric(key string) float64 {
	switch key {
	case "overall_ctr":
		return t.OverallCTR
	case "conversion_rate":
		return t.ConversionRate
	case "cpc":
		return t.CPC
	case "cpm":
		return t.CPM
	case "roi":
		return t.ROI
	}
	return 0
}

func bestPerformer(ads []ComparedAd) *BestPerformer {
	if len(ads) == 0 {
		return nil
	}

	best := ads[0]
	for _, ad := range ads[1:] {
		if ad.Performance.OverallCTR > best.Performance.OverallCTR {
			best = ad
		}
	}

	return &BestPerformer{
		AdID:           best.ID,
		Title:          best.Title,
		CTR:            best.Performance.OverallCTR,
		ConversionRate: best.Performance.ConversionRate,
		ROI:            best.Performance.ROI,
	}
}

func compareMetrics(ads []ComparedAd) ComparisonMetrics {
	averages := make(map[string]float64, len(comparedMetrics))
	for _, key := range comparedMetrics {
		var sum float64
		for _, ad := range ads {
			sum += ad.Performance.metric(key)
		}
		if len(ads) > 0 {
			averages[key] = sum / float64(len(ads))
		} else {
			averages[key] = 0
		}
	}

	comparisons := make([]AdComparison, 0, len(ads))
	for _, ad := range ads {
		relative := make(map[string]float64, len(comparedMetrics))
		for _, key := range comparedMetrics {
			avg := averages[key]
			if avg > 0 {
				relative[key] = (ad.Performance.metric(key) - avg) / avg * 100
			} else {
				relative[key] = 0
			}
		}
		comparisons = append(comparisons, AdComparison{
			AdID:                ad.ID,
			Title:               ad.Title,
			Metrics:             ad.Performance,
			RelativePerformance: relative,
		})
	}

	return ComparisonMetrics{Averages: averages, AdComparisons: comparisons}
}
