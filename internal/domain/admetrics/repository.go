package admetrics

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shopads/ads-api/internal/pkg/database"
)

const dateLayout = "2006-01-02"

const metricsColumns = `
	id, advertisement_id, date, impressions, clicks, conversions,
	ctr, cost, revenue, roi, demographics, custom_metrics, created_at, updated_at`

// Store is the persistence the metrics service depends on
type Store interface {
	GetAd(ctx context.Context, id uuid.UUID) (*AdSnapshot, error)
	GetDayForUpdate(ctx context.Context, tx *sqlx.Tx, adID uuid.UUID, day time.Time) (*DailyMetrics, error)
	InsertDay(ctx context.Context, tx *sqlx.Tx, m *DailyMetrics) (bool, error)
	UpdateDay(ctx context.Context, tx *sqlx.Tx, m *DailyMetrics) error
	ListSince(ctx context.Context, adID uuid.UUID, since time.Time) ([]DailyMetrics, error)
	ListRecent(ctx context.Context, adID uuid.UUID, limit int) ([]DailyMetrics, error)
}

// Repository handles ad_metrics database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new metrics repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetAd loads the advertisement fields reporting needs
func (r *Repository) GetAd(ctx context.Context, id uuid.UUID) (*AdSnapshot, error) {
	query := `
		SELECT id, title, type, status, start_date, end_date, budget,
			max_impressions, max_clicks, impressions, clicks
		FROM advertisements
		WHERE id = $1
	`

	var ad AdSnapshot
	err := r.db.GetContext(ctx, &ad, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ad, nil
}

// GetDayForUpdate returns the row for (adID, day) locked for the rest of tx,
// or nil when the day has no row yet.
func (r *Repository) GetDayForUpdate(ctx context.Context, tx *sqlx.Tx, adID uuid.UUID, day time.Time) (*DailyMetrics, error) {
	query := `SELECT` + metricsColumns + `
		FROM ad_metrics
		WHERE advertisement_id = $1 AND date = $2
		FOR UPDATE
	`

	var m DailyMetrics
	err := database.Pick(r.db, tx).GetContext(ctx, &m, query, adID, day.Format(dateLayout))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertDay creates the first row of a day. It reports false when a
// concurrent writer created the row first.
func (r *Repository) InsertDay(ctx context.Context, tx *sqlx.Tx, m *DailyMetrics) (bool, error) {
	query := `
		INSERT INTO ad_metrics (` + metricsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (advertisement_id, date) DO NOTHING
	`

	result, err := database.Pick(r.db, tx).ExecContext(ctx, query,
		m.ID,
		m.AdvertisementID,
		m.Date.Format(dateLayout),
		m.Impressions,
		m.Clicks,
		m.Conversions,
		m.CTR,
		m.Cost,
		m.Revenue,
		m.ROI,
		m.Demographics,
		m.CustomMetrics,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// UpdateDay writes back a row previously read with GetDayForUpdate
func (r *Repository) UpdateDay(ctx context.Context, tx *sqlx.Tx, m *DailyMetrics) error {
	query := `
		UPDATE ad_metrics
		SET impressions = $2, clicks = $3, conversions = $4,
			ctr = $5, cost = $6, revenue = $7, roi = $8,
			demographics = $9, custom_metrics = $10, updated_at = $11
		WHERE id = $1
	`

	_, err := database.Pick(r.db, tx).ExecContext(ctx, query,
		m.ID,
		m.Impressions,
		m.Clicks,
		m.Conversions,
		m.CTR,
		m.Cost,
		m.Revenue,
		m.ROI,
		m.Demographics,
		m.CustomMetrics,
		m.UpdatedAt,
	)
	return err
}

// ListSince returns rows dated on or after since, oldest first
func (r *Repository) ListSince(ctx context.Context, adID uuid.UUID, since time.Time) ([]DailyMetrics, error) {
	query := `SELECT` + metricsColumns + `
		FROM ad_metrics
		WHERE advertisement_id = $1 AND date >= $2
		ORDER BY date ASC
	`

	var rows []DailyMetrics
	if err := r.db.SelectContext(ctx, &rows, query, adID, since.Format(dateLayout)); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRecent returns the latest limit rows, newest first
func (r *Repository) ListRecent(ctx context.Context, adID uuid.UUID, limit int) ([]DailyMetrics, error) {
	query := `SELECT` + metricsColumns + `
		FROM ad_metrics
		WHERE advertisement_id = $1
		ORDER BY date DESC
		LIMIT $2
	`

	var rows []DailyMetrics
	if err := r.db.SelectContext(ctx, &rows, query, adID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
