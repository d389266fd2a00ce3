package ads

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/shopads/ads-api/internal/domain/admetrics"
)

// AdType is the creative format
type AdType string

const (
	TypeBanner           AdType = "BANNER"
	TypeCarousel         AdType = "CAROUSEL"
	TypePopup            AdType = "POPUP"
	TypeVideo            AdType = "VIDEO"
	TypeNative           AdType = "NATIVE"
	TypeSponsoredProduct AdType = "SPONSORED_PRODUCT"
)

// Status is the campaign lifecycle state
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusEnded     Status = "ENDED"
)

// TargetType is the audience segmentation rule
type TargetType string

const (
	TargetAllUsers       TargetType = "ALL_USERS"
	TargetNewUsers       TargetType = "NEW_USERS"
	TargetReturningUsers TargetType = "RETURNING_USERS"
	TargetInterestBased  TargetType = "INTEREST_BASED"
	TargetLocationBased  TargetType = "LOCATION_BASED"
	TargetSpecificUsers  TargetType = "SPECIFIC_USERS"
)

// Advertisement represents a campaign
type Advertisement struct {
	ID          uuid.UUID      `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Type        AdType         `db:"type"`
	Placement   string         `db:"placement"`
	Content     types.JSONText `db:"content"`
	Status      Status         `db:"status"`

	// Schedule
	StartDate      time.Time       `db:"start_date"`
	EndDate        sql.NullTime    `db:"end_date"`
	ScheduleConfig *ScheduleConfig `db:"schedule_config"`

	// Caps
	Priority       int                 `db:"priority"`
	MaxImpressions sql.NullInt64       `db:"max_impressions"`
	MaxClicks      sql.NullInt64       `db:"max_clicks"`
	Budget         decimal.NullDecimal `db:"budget"`

	// Counters
	Impressions int64 `db:"impressions"`
	Clicks      int64 `db:"clicks"`
	Conversions int64 `db:"conversions"`

	// Targeting
	TargetType        TargetType         `db:"target_type"`
	TargetConfig      *TargetConfig      `db:"target_config"`
	DisplayConditions *DisplayConditions `db:"display_conditions"`
	IsAbTest          bool               `db:"is_ab_test"`
	AbTestGroup       sql.NullString     `db:"ab_test_group"`

	// Associations
	ProductID  sql.NullString `db:"product_id"`
	CategoryID sql.NullString `db:"category_id"`
	BrandID    sql.NullString `db:"brand_id"`
	MediaURLs  pq.StringArray `db:"media_urls"`

	CreatedBy uuid.NullUUID `db:"created_by"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// impressionCapReached, clickCapReached and budgetExhausted treat an unset
// or zero cap as unlimited.
func (a *Advertisement) impressionCapReached() bool {
	return a.MaxImpressions.Valid && a.MaxImpressions.Int64 > 0 && a.Impressions >= a.MaxImpressions.Int64
}

func (a *Advertisement) clickCapReached() bool {
	return a.MaxClicks.Valid && a.MaxClicks.Int64 > 0 && a.Clicks >= a.MaxClicks.Int64
}

func (a *Advertisement) budgetExhausted() bool {
	return a.Budget.Valid && !a.Budget.Decimal.IsPositive()
}

// CapsReached reports whether any impression, click or budget cap is met
func (a *Advertisement) CapsReached() bool {
	return a.impressionCapReached() || a.clickCapReached() || a.budgetExhausted()
}

// Counters are the running interaction totals after an update
type Counters struct {
	Impressions int64 `db:"impressions"`
	Clicks      int64 `db:"clicks"`
	Conversions int64 `db:"conversions"`
}

// TargetConfig is the audience predicate payload
type TargetConfig struct {
	Interests []string `json:"interests,omitempty"`
	UserIDs   []string `json:"userIds,omitempty"`
	// Locations is stored for LOCATION_BASED campaigns but never evaluated
	Locations json.RawMessage `json:"locations,omitempty"`
}

func (c TargetConfig) Value() (driver.Value, error) { return json.Marshal(c) }
func (c *TargetConfig) Scan(src interface{}) error { return scanJSON(src, c) }

// CartContains matches carts holding any of the listed products
type CartContains struct {
	ProductIDs []string `json:"productIds,omitempty"`
}

// CartValue bounds the cart total; a nil bound is open
type CartValue struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// DisplayConditions are page and cart predicates
type DisplayConditions struct {
	Paths        []string      `json:"paths,omitempty"`
	CartContains *CartContains `json:"cartContains,omitempty"`
	CartValue    *CartValue    `json:"cartValue,omitempty"`
}

func (c DisplayConditions) Value() (driver.Value, error) { return json.Marshal(c) }
func (c *DisplayConditions) Scan(src interface{}) error { return scanJSON(src, c) }

// Weekdays lists days as "0" (Sunday) to "6" (Saturday). Numbers are
// accepted on input and normalized to strings.
type Weekdays []string

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*w = nil
		return nil
	}

	days := make(Weekdays, 0, len(raw))
	for _, v := range raw {
		switch d := v.(type) {
		case string:
			days = append(days, d)
		case float64:
			days = append(days, strconv.Itoa(int(d)))
		default:
			return fmt.Errorf("invalid day %v", v)
		}
	}
	*w = days
	return nil
}

// ScheduleConfig restricts delivery to weekdays and a time-of-day window
type ScheduleConfig struct {
	Days      Weekdays `json:"days,omitempty" validate:"omitempty,dive,weekday"`
	TimeStart string   `json:"timeStart,omitempty" validate:"omitempty,hhmm"`
	TimeEnd   string   `json:"timeEnd,omitempty" validate:"omitempty,hhmm"`
}

func (c ScheduleConfig) Value() (driver.Value, error) { return json.Marshal(c) }
func (c *ScheduleConfig) Scan(src interface{}) error { return scanJSON(src, c) }

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// InteractionCost is the fixed per-event charge against the budget
func InteractionCost(t admetrics.InteractionType) decimal.Decimal {
	switch t {
	case admetrics.InteractionImpression:
		return decimal.New(1, -3)
	case admetrics.InteractionClick:
		return decimal.New(1, -2)
	case admetrics.InteractionConversion:
		return decimal.New(1, -1)
	}
	return decimal.Zero
}
