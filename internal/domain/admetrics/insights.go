package admetrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// GenerateInsights applies threshold rules to the performance summary
func (s *Service) GenerateInsights(ctx context.Context, adID uuid.UUID) (*Insights, error) {
	perf, err := s.GetPerformanceSummary(ctx, adID)
	if err != nil {
		return nil, err
	}
	return buildInsights(perf), nil
}

func buildInsights(perf *PerformanceSummary) *Insights {
	sum := perf.Summary
	insights := make([]Insight, 0)

	if sum.OverallCTR < 0.5 {
		insights = append(insights, Insight{
			Type:           "improvement",
			Severity:       "high",
			Message:        "Click-through rate is below industry average (0.5%)",
			Recommendation: "Consider updating ad creative or targeting parameters",
		})
	} else if sum.OverallCTR > 2 {
		insights = append(insights, Insight{
			Type:           "positive",
			Severity:       "low",
			Message:        "Click-through rate is exceptionally good",
			Recommendation: "Consider increasing budget to capitalize on performance",
		})
	}

	if sum.ConversionRate < 1 {
		insights = append(insights, Insight{
			Type:           "improvement",
			Severity:       "medium",
			Message:        "Conversion rate is below expectations",
			Recommendation: "Review landing page or offer to improve conversions",
		})
	}

	if sum.ROI < 0 {
		insights = append(insights, Insight{
			Type:           "alert",
			Severity:       "high",
			Message:        "Campaign is not generating positive ROI",
			Recommendation: "Review ad spend and targeting to improve efficiency",
		})
	}

	if perf.Trends.Impressions < -10 {
		insights = append(insights, Insight{
			Type:           "warning",
			Severity:       "medium",
			Message:        "Impressions have dropped by more than 10% in the last week",
			Recommendation: "Check for changes in competition or seasonality factors",
		})
	}
	if perf.Trends.Clicks < -10 {
		insights = append(insights, Insight{
			Type:           "warning",
			Severity:       "medium",
			Message:        "Clicks have dropped by more than 10% in the last week",
			Recommendation: "Review ad creative and messaging for potential fatigue",
		})
	}

	top := topDemographic(perf.Demographics)
	if top != nil {
		insights = append(insights, Insight{
			Type:           "opportunity",
			Severity:       "medium",
			Message:        fmt.Sprintf("Strongest engagement from %s: %s", top.kind, top.value),
			Recommendation: "Consider focusing budget on this demographic segment",
		})
	}

	actions := make([]string, 0)
	if sum.ROI > 20 {
		actions = append(actions, "Increase campaign budget to capitalize on strong performance")
	} else if sum.ROI < 0 {
		actions = append(actions, "Reduce budget or pause campaign until performance improves")
	}
	if sum.OverallCTR < 0.5 {
		actions = append(actions, "Update ad creative with stronger imagery and call-to-action")
	}
	if top != nil {
		actions = append(actions, fmt.Sprintf("Refine targeting to focus on %s: %s", top.kind, top.value))
	}
	if len(perf.DailyData) > 0 {
		if day, ok := bestWeekday(perf.DailyData); ok {
			actions = append(actions, fmt.Sprintf("Optimize ad schedule to focus on %s which has the highest engagement", day))
		}
	}

	return &Insights{Insights: insights, RecommendedActions: actions}
}

type segment struct {
	kind  string
	value string
}

// topDemographic scans age groups, then genders, then locations; the first
// bucket with the strictly highest count wins. Keys are visited in sorted
// order within a category so the result is stable.
func topDemographic(d Demographics) *segment {
	var top *segment
	var topCount int64

	categories := []struct {
		kind   string
		counts Counts
	}{
		{"age group", d.AgeGroups},
		{"gender", d.Genders},
		{"location", d.Locations},
	}

	for _, c := range categories {
		keys := make([]string, 0, len(c.counts))
		for k := range c.counts {
			keys = append(keys, k)
		}
		// Same order as jsonb object keys: shorter first, then bytewise
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) < len(keys[j])
			}
			return keys[i] < keys[j]
		})

		for _, k := range keys {
			if c.counts[k] > topCount {
				top = &segment{kind: c.kind, value: k}
				topCount = c.counts[k]
			}
		}
	}
	return top
}

// bestWeekday groups the series by weekday and returns the one with the
// highest CTR, Sunday first on ties.
func bestWeekday(series []DailyPoint) (string, bool) {
	var clicks, impressions [7]int64
	for _, p := range series {
		date, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			continue
		}
		wd := date.Weekday()
		clicks[wd] += p.Clicks
		impressions[wd] += p.Impressions
	}

	best := -1
	var bestCTR float64
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if impressions[wd] == 0 {
			continue
		}
		ctr := float64(clicks[wd]) / float64(impressions[wd]) * 100
		if ctr > bestCTR {
			bestCTR = ctr
			best = int(wd)
		}
	}

	if best < 0 {
		return "", false
	}
	return time.Weekday(best).String(), true
}
