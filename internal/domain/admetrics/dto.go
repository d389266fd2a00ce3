package admetrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals is the headline block of a performance summary
type Totals struct {
	TotalImpressions int64           `json:"total_impressions"`
	TotalClicks      int64           `json:"total_clicks"`
	TotalConversions int64           `json:"total_conversions"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	OverallCTR       float64         `json:"overall_ctr"`
	ConversionRate   float64         `json:"conversion_rate"`
	CPC              float64         `json:"cpc"`
	CPM              float64         `json:"cpm"`
	ROI              float64         `json:"roi"`
}

// Averages are per-day means over the days that have a row
type Averages struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Conversions float64 `json:"conversions"`
}

// Trends compare the trailing 7 days with the 7 days before, in percent
type Trends struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
}

// DailyPoint is one entry of the chart series
type DailyPoint struct {
	Date        string          `json:"date"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
	CTR         float64         `json:"ctr"`
}

// ReachedLimits flags exhausted caps
type ReachedLimits struct {
	Budget      bool `json:"budget"`
	Impressions bool `json:"impressions"`
	Clicks      bool `json:"clicks"`
}

// PerformanceSummary covers the trailing 30 days of an advertisement
type PerformanceSummary struct {
	Summary       Totals        `json:"summary"`
	Averages      Averages      `json:"averages"`
	Trends        Trends        `json:"trends"`
	Demographics  Demographics  `json:"demographics"`
	DailyData     []DailyPoint  `json:"daily_data"`
	ReachedLimits ReachedLimits `json:"reached_limits"`
}

// ComparedAd is one campaign in a comparison
type ComparedAd struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Performance Totals     `json:"performance"`
}

// BestPerformer is the campaign with the highest overall CTR
type BestPerformer struct {
	AdID           string  `json:"ad_id"`
	Title          string  `json:"title"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
	ROI            float64 `json:"roi"`
}

// AdComparison holds one campaign's deviation from the cross-campaign mean
type AdComparison struct {
	AdID                string             `json:"ad_id"`
	Title               string             `json:"title"`
	Metrics             Totals             `json:"metrics"`
	RelativePerformance map[string]float64 `json:"relative_performance"`
}

// ComparisonMetrics groups averages and per-campaign deviations
type ComparisonMetrics struct {
	Averages      map[string]float64 `json:"averages"`
	AdComparisons []AdComparison     `json:"ad_comparisons"`
}

// Comparison is the result of comparing campaigns
type Comparison struct {
	Ads        []ComparedAd `json:"ads"`
	Comparison struct {
		BestPerformer *BestPerformer    `json:"best_performer"`
		Metrics       ComparisonMetrics `json:"metrics"`
	} `json:"comparison"`
}

// Insight is a single rule-based observation
type Insight struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation"`
}

// Insights is the result of generateInsights
type Insights struct {
	Insights           []Insight `json:"insights"`
	RecommendedActions []string  `json:"recommended_actions"`
}

// CompareRequest is the body of POST /ads/compare
type CompareRequest struct {
	AdIDs []string `json:"ad_ids" validate:"required,min=1,max=20,dive,uuid"`
}
