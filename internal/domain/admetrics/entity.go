package admetrics

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// InteractionType is the kind of event logged against an advertisement
type InteractionType string

const (
	InteractionImpression InteractionType = "IMPRESSION"
	InteractionClick      InteractionType = "CLICK"
	InteractionConversion InteractionType = "CONVERSION"
)

// Valid reports whether t is a known interaction type
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionImpression, InteractionClick, InteractionConversion:
		return true
	}
	return false
}

// Counts maps a demographic bucket to its counter
type Counts map[string]int64

func (c Counts) add(o Counts) Counts {
	if len(o) == 0 {
		return c
	}
	if c == nil {
		c = make(Counts, len(o))
	}
	for k, v := range o {
		c[k] += v
	}
	return c
}

// Demographics holds nested counters by audience segment
type Demographics struct {
	AgeGroups Counts `json:"ageGroups"`
	Genders   Counts `json:"genders"`
	Locations Counts `json:"locations"`
	Devices   Counts `json:"devices"`
}

// IsEmpty reports whether no bucket holds data
func (d Demographics) IsEmpty() bool {
	return len(d.AgeGroups) == 0 && len(d.Genders) == 0 && len(d.Locations) == 0 && len(d.Devices) == 0
}

// Merge sums o into d bucket by bucket
func (d *Demographics) Merge(o Demographics) {
	d.AgeGroups = d.AgeGroups.add(o.AgeGroups)
	d.Genders = d.Genders.add(o.Genders)
	d.Locations = d.Locations.add(o.Locations)
	d.Devices = d.Devices.add(o.Devices)
}

// Value stores empty demographics as NULL
func (d Demographics) Value() (driver.Value, error) {
	if d.IsEmpty() {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for the jsonb column
func (d *Demographics) Scan(src interface{}) error {
	*d = Demographics{}
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("demographics: unsupported type %T", src)
	}
}

// DailyMetrics is the per (advertisement, day) rollup
type DailyMetrics struct {
	ID              uuid.UUID           `db:"id"`
	AdvertisementID uuid.UUID           `db:"advertisement_id"`
	Date            time.Time           `db:"date"`
	Impressions     int64               `db:"impressions"`
	Clicks          int64               `db:"clicks"`
	Conversions     int64               `db:"conversions"`
	CTR             sql.NullFloat64     `db:"ctr"`
	Cost            decimal.NullDecimal `db:"cost"`
	Revenue         decimal.NullDecimal `db:"revenue"`
	ROI             sql.NullFloat64     `db:"roi"`
	Demographics    Demographics        `db:"demographics"`
	CustomMetrics   types.NullJSONText  `db:"custom_metrics"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

// Point renders the row for charts and API responses
func (m *DailyMetrics) Point() DailyPoint {
	return DailyPoint{
		Date:        m.Date.Format(dateLayout),
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Conversions: m.Conversions,
		Revenue:     m.Revenue.Decimal,
		Cost:        m.Cost.Decimal,
		CTR:         m.CTR.Float64,
	}
}

// Metadata travels with an interaction into the daily rollup
type Metadata struct {
	// Cost is the amount actually deducted from the campaign budget
	Cost          decimal.NullDecimal
	Value         decimal.NullDecimal
	Demographics  *Demographics
	CustomMetrics map[string]interface{}
}

// Interaction is a single impression, click or conversion
type Interaction struct {
	AdvertisementID uuid.UUID
	Type            InteractionType
	UserID          string
	Metadata        Metadata
}

// AdSnapshot is the advertisement state reporting needs
type AdSnapshot struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	Title          string              `db:"title" json:"title"`
	Type           string              `db:"type" json:"type"`
	Status         string              `db:"status" json:"status"`
	StartDate      time.Time           `db:"start_date" json:"start_date"`
	EndDate        sql.NullTime        `db:"end_date" json:"-"`
	Budget         decimal.NullDecimal `db:"budget" json:"-"`
	MaxImpressions sql.NullInt64       `db:"max_impressions" json:"-"`
	MaxClicks      sql.NullInt64       `db:"max_clicks" json:"-"`
	Impressions    int64               `db:"impressions" json:"-"`
	Clicks         int64               `db:"clicks" json:"-"`
}

// CalendarDay truncates t to its local calendar date, expressed as UTC
// midnight so it compares equal to DATE values read back from postgres.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
