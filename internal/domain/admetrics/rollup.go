package admetrics

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// applyInteraction folds ev into the day's row. A nil row produces the first
// row of the day; otherwise row is updated in place and returned.
//
// CTR on a click is (clicks+1)/max(impressions,1) over the counters as they
// stood before the event, a running approximation rather than a windowed rate.
func applyInteraction(row *DailyMetrics, ev Interaction, day, now time.Time) *DailyMetrics {
	md := ev.Metadata
	hasCost := md.Cost.Valid && !md.Cost.Decimal.IsZero()
	hasValue := ev.Type == InteractionConversion && md.Value.Valid && !md.Value.Decimal.IsZero()

	if row == nil {
		row = &DailyMetrics{
			ID:              uuid.New(),
			AdvertisementID: ev.AdvertisementID,
			Date:            day,
			CreatedAt:       now,
		}
		switch ev.Type {
		case InteractionImpression:
			row.Impressions = 1
		case InteractionClick:
			row.Clicks = 1
			row.CTR = sql.NullFloat64{Float64: 1, Valid: true}
		case InteractionConversion:
			row.Conversions = 1
		}
		if hasCost {
			row.Cost = md.Cost
		}
		if hasValue {
			row.Revenue = md.Value
			if row.Cost.Valid && row.Cost.Decimal.IsPositive() {
				row.ROI = roi(row.Revenue.Decimal, row.Cost.Decimal)
			}
		}
		if md.Demographics != nil {
			row.Demographics.Merge(*md.Demographics)
		}
		if len(md.CustomMetrics) > 0 {
			row.CustomMetrics = mergeCustom(row.CustomMetrics, md.CustomMetrics)
		}
		row.UpdatedAt = now
		return row
	}

	switch ev.Type {
	case InteractionImpression:
		row.Impressions++
	case InteractionClick:
		impressions := row.Impressions
		if impressions < 1 {
			impressions = 1
		}
		row.CTR = sql.NullFloat64{Float64: float64(row.Clicks+1) / float64(impressions), Valid: true}
		row.Clicks++
	case InteractionConversion:
		row.Conversions++
	}

	prevCost := row.Cost

	if hasCost {
		newCost := row.Cost.Decimal.Add(md.Cost.Decimal)
		row.Cost = decimal.NewNullDecimal(newCost)
		if row.Revenue.Valid && !row.Revenue.Decimal.IsZero() {
			row.ROI = roi(row.Revenue.Decimal, newCost)
		}
	}

	// A conversion's ROI is measured against the cost before this event
	if hasValue {
		newRevenue := row.Revenue.Decimal.Add(md.Value.Decimal)
		row.Revenue = decimal.NewNullDecimal(newRevenue)
		if prevCost.Valid && prevCost.Decimal.IsPositive() {
			row.ROI = roi(newRevenue, prevCost.Decimal)
		}
	}

	if md.Demographics != nil {
		row.Demographics.Merge(*md.Demographics)
	}
	if len(md.CustomMetrics) > 0 {
		row.CustomMetrics = mergeCustom(row.CustomMetrics, md.CustomMetrics)
	}

	row.UpdatedAt = now
	return row
}

func roi(revenue, cost decimal.Decimal) sql.NullFloat64 {
	return sql.NullFloat64{Float64: revenue.Div(cost).InexactFloat64() - 1, Valid: true}
}

// mergeCustom overlays incoming keys on the stored object
func mergeCustom(existing types.NullJSONText, incoming map[string]interface{}) types.NullJSONText {
	merged := make(map[string]interface{}, len(incoming))
	if existing.Valid && len(existing.JSONText) > 0 {
		_ = json.Unmarshal(existing.JSONText, &merged)
	}
	if merged == nil {
		merged = make(map[string]interface{}, len(incoming))
	}
	for k, v := range incoming {
		merged[k] = v
	}

	b, err := json.Marshal(merged)
	if err != nil {
		return existing
	}
	return types.NullJSONText{JSONText: b, Valid: true}
}
