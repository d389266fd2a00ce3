package ads

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopads/ads-api/internal/domain/admetrics"
)

// CreateRequest for POST /ads
type CreateRequest struct {
	Title       string          `json:"title" validate:"required,min=1,max=255"`
	Description *string         `json:"description" validate:"omitempty,max=5000"`
	Type        AdType          `json:"type" validate:"required,ad_type"`
	Placement   string          `json:"placement" validate:"required,max=64"`
	Content     json.RawMessage `json:"content" validate:"required"`
	Status      Status          `json:"status" validate:"omitempty,ad_status"`

	StartDate      time.Time       `json:"start_date" validate:"required"`
	EndDate        *time.Time      `json:"end_date"`
	ScheduleConfig *ScheduleConfig `json:"schedule_config"`

	Priority       int              `json:"priority" validate:"gte=0"`
	MaxImpressions *int64           `json:"max_impressions" validate:"omitempty,gte=0"`
	MaxClicks      *int64           `json:"max_clicks" validate:"omitempty,gte=0"`
	Budget         *decimal.Decimal `json:"budget"`

	TargetType        TargetType         `json:"target_type" validate:"omitempty,target_type"`
	TargetConfig      *TargetConfig      `json:"target_config"`
	DisplayConditions *DisplayConditions `json:"display_conditions"`
	IsAbTest          bool               `json:"is_ab_test"`
	AbTestGroup       *string            `json:"ab_test_group" validate:"omitempty,max=100"`

	ProductID  *string  `json:"product_id" validate:"omitempty,max=64"`
	CategoryID *string  `json:"category_id" validate:"omitempty,max=64"`
	BrandID    *string  `json:"brand_id" validate:"omitempty,max=64"`
	MediaURLs  []string `json:"media_urls" validate:"omitempty,max=20,dive,url"`
}

// UpdateRequest for PATCH /ads/{id}. Nil fields are left unchanged.
type UpdateRequest struct {
	Title       *string         `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string         `json:"description" validate:"omitempty,max=5000"`
	Type        *AdType         `json:"type" validate:"omitempty,ad_type"`
	Placement   *string         `json:"placement" validate:"omitempty,max=64"`
	Content     json.RawMessage `json:"content"`
	Status      *Status         `json:"status" validate:"omitempty,ad_status"`

	StartDate      *time.Time      `json:"start_date"`
	EndDate        *time.Time      `json:"end_date"`
	ScheduleConfig *ScheduleConfig `json:"schedule_config"`

	Priority       *int             `json:"priority" validate:"omitempty,gte=0"`
	MaxImpressions *int64           `json:"max_impressions" validate:"omitempty,gte=0"`
	MaxClicks      *int64           `json:"max_clicks" validate:"omitempty,gte=0"`
	Budget         *decimal.Decimal `json:"budget"`

	TargetType        *TargetType        `json:"target_type" validate:"omitempty,target_type"`
	TargetConfig      *TargetConfig      `json:"target_config"`
	DisplayConditions *DisplayConditions `json:"display_conditions"`
	IsAbTest          *bool              `json:"is_ab_test"`
	AbTestGroup       *string            `json:"ab_test_group" validate:"omitempty,max=100"`

	ProductID  *string  `json:"product_id" validate:"omitempty,max=64"`
	CategoryID *string  `json:"category_id" validate:"omitempty,max=64"`
	BrandID    *string  `json:"brand_id" validate:"omitempty,max=64"`
	MediaURLs  []string `json:"media_urls" validate:"omitempty,max=20,dive,url"`
}

// StatusRequest for PATCH /ads/{id}/status
type StatusRequest struct {
	Status Status `json:"status" validate:"required,ad_status"`
}

// InteractionMetadata is the optional payload of an interaction
type InteractionMetadata struct {
	Value         *decimal.Decimal        `json:"value"`
	Demographics  *admetrics.Demographics `json:"demographics"`
	CustomMetrics map[string]interface{}  `json:"customMetrics"`
}

// InteractionRequest for POST /ads/interaction
type InteractionRequest struct {
	AdvertisementID string               `json:"advertisement_id" validate:"required,uuid"`
	InteractionType string               `json:"interaction_type" validate:"required,interaction_type"`
	UserID          string               `json:"user_id" validate:"omitempty,max=64"`
	Metadata        *InteractionMetadata `json:"metadata"`
}

// Response is the public representation of an advertisement
type Response struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Type        AdType          `json:"type"`
	Placement   string          `json:"placement"`
	Content     json.RawMessage `json:"content"`
	Status      Status          `json:"status"`

	StartDate      time.Time       `json:"start_date"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	ScheduleConfig *ScheduleConfig `json:"schedule_config,omitempty"`

	Priority       int              `json:"priority"`
	MaxImpressions *int64           `json:"max_impressions,omitempty"`
	MaxClicks      *int64           `json:"max_clicks,omitempty"`
	Budget         *decimal.Decimal `json:"budget,omitempty"`

	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
	Conversions int64 `json:"conversions"`

	TargetType        TargetType         `json:"target_type"`
	TargetConfig      *TargetConfig      `json:"target_config,omitempty"`
	DisplayConditions *DisplayConditions `json:"display_conditions,omitempty"`
	IsAbTest          bool               `json:"is_ab_test"`
	AbTestGroup       *string            `json:"ab_test_group,omitempty"`

	ProductID  *string  `json:"product_id,omitempty"`
	CategoryID *string  `json:"category_id,omitempty"`
	BrandID    *string  `json:"brand_id,omitempty"`
	MediaURLs  []string `json:"media_urls"`

	CreatedBy *string   `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Performance *admetrics.PerformanceSummary `json:"performance,omitempty"`
}

// DetailResponse is GET /ads/{id}
type DetailResponse struct {
	Response
	Metrics []admetrics.DailyPoint `json:"metrics"`
}

// ToResponse converts the entity to its API shape
func (a *Advertisement) ToResponse() *Response {
	resp := &Response{
		ID:                a.ID.String(),
		Title:             a.Title,
		Type:              a.Type,
		Placement:         a.Placement,
		Content:           json.RawMessage(a.Content),
		Status:            a.Status,
		StartDate:         a.StartDate,
		ScheduleConfig:    a.ScheduleConfig,
		Priority:          a.Priority,
		Impressions:       a.Impressions,
		Clicks:            a.Clicks,
		Conversions:       a.Conversions,
		TargetType:        a.TargetType,
		TargetConfig:      a.TargetConfig,
		DisplayConditions: a.DisplayConditions,
		IsAbTest:          a.IsAbTest,
		MediaURLs:         []string(a.MediaURLs),
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}

	if len(resp.Content) == 0 {
		resp.Content = json.RawMessage("{}")
	}
	if resp.MediaURLs == nil {
		resp.MediaURLs = []string{}
	}
	if a.Description.Valid {
		resp.Description = &a.Description.String
	}
	if a.EndDate.Valid {
		resp.EndDate = &a.EndDate.Time
	}
	if a.MaxImpressions.Valid {
		resp.MaxImpressions = &a.MaxImpressions.Int64
	}
	if a.MaxClicks.Valid {
		resp.MaxClicks = &a.MaxClicks.Int64
	}
	if a.Budget.Valid {
		resp.Budget = &a.Budget.Decimal
	}
	if a.AbTestGroup.Valid {
		resp.AbTestGroup = &a.AbTestGroup.String
	}
	if a.ProductID.Valid {
		resp.ProductID = &a.ProductID.String
	}
	if a.CategoryID.Valid {
		resp.CategoryID = &a.CategoryID.String
	}
	if a.BrandID.Valid {
		resp.BrandID = &a.BrandID.String
	}
	if a.CreatedBy.Valid {
		s := a.CreatedBy.UUID.String()
		resp.CreatedBy = &s
	}

	return resp
}

// UploadedMedia describes one stored creative
type UploadedMedia struct {
	PublicID     string `json:"publicId"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ResourceType string `json:"resourceType"`
}

// ProcessResult reports what a lifecycle sweep changed
type ProcessResult struct {
	Activated int `json:"activated"`
	Ended     int `json:"ended"`
	Failed    int `json:"failed"`
}
