package ads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/shopads/ads-api/internal/domain/admetrics"
	"github.com/shopads/ads-api/internal/pkg/database"
)

const adColumns = `
	id, title, description, type, placement, content, status,
	start_date, end_date, schedule_config, priority, max_impressions, max_clicks, budget,
	impressions, clicks, conversions, target_type, target_config, display_conditions,
	is_ab_test, ab_test_group, product_id, category_id, brand_id, media_urls,
	created_by, created_at, updated_at`

// ListFilter narrows the operator listing
type ListFilter struct {
	Type       *AdType
	Placement  *string
	Status     *Status
	TargetType *TargetType
	ProductID  *string
	CategoryID *string
	BrandID    *string
	IsAbTest   *bool
	ActiveFrom *time.Time
	ActiveTo   *time.Time
}

// Repository handles advertisement database operations
type Repository interface {
	Create(ctx context.Context, ad *Advertisement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Advertisement, error)
	Update(ctx context.Context, tx *sqlx.Tx, ad *Advertisement, setStatus, setBudget bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	TransitionStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to Status) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Advertisement, error)
	ListCandidates(ctx context.Context, placement string, now time.Time) ([]Advertisement, error)
	ListDueForActivation(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ListDueForEnding(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Advertisement, error)
	IncrementCounter(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, t admetrics.InteractionType) (Counters, error)
	DeductBudget(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, cost decimal.Decimal) (decimal.Decimal, bool, error)
}

// PostgresRepository implements Repository with sqlx
type PostgresRepository struct {
	db *sqlx.DB
}

// NewRepository creates a new advertisement repository
func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new advertisement
func (r *PostgresRepository) Create(ctx context.Context, ad *Advertisement) error {
	query := `
		INSERT INTO advertisements (` + adColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		ad.ID,
		ad.Title,
		ad.Description,
		ad.Type,
		ad.Placement,
		ad.Content,
		ad.Status,
		ad.StartDate,
		ad.EndDate,
		ad.ScheduleConfig,
		ad.Priority,
		ad.MaxImpressions,
		ad.MaxClicks,
		ad.Budget,
		ad.Impressions,
		ad.Clicks,
		ad.Conversions,
		ad.TargetType,
		ad.TargetConfig,
		ad.DisplayConditions,
		ad.IsAbTest,
		ad.AbTestGroup,
		ad.ProductID,
		ad.CategoryID,
		ad.BrandID,
		ad.MediaURLs,
		ad.CreatedBy,
		ad.CreatedAt,
		ad.UpdatedAt,
	)
	return err
}

// GetByID returns an advertisement by ID
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Advertisement, error) {
	return r.get(ctx, r.db, `SELECT`+adColumns+` FROM advertisements WHERE id = $1`, id)
}

// GetForUpdate locks the advertisement row for the rest of tx
func (r *PostgresRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Advertisement, error) {
	return r.get(ctx, database.Pick(r.db, tx), `SELECT`+adColumns+` FROM advertisements WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) get(ctx context.Context, q database.Querier, query string, id uuid.UUID) (*Advertisement, error) {
	var ad Advertisement
	err := q.GetContext(ctx, &ad, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ad, nil
}

// Update writes the operator-editable fields. Counters are never touched;
// status and budget only when setStatus and setBudget are true, so a
// concurrent pause or interaction is not overwritten. The stored status,
// budget and counters are read back into ad.
func (r *PostgresRepository) Update(ctx context.Context, tx *sqlx.Tx, ad *Advertisement, setStatus, setBudget bool) error {
	query := `
		UPDATE advertisements SET
			title = $2, description = $3, type = $4, placement = $5, content = $6,
			status = CASE WHEN $26 THEN $7 ELSE status END,
			start_date = $8, end_date = $9, schedule_config = $10, priority = $11,
			max_impressions = $12, max_clicks = $13,
			budget = CASE WHEN $14 THEN $15::numeric ELSE budget END,
			target_type = $16, target_config = $17, display_conditions = $18,
			is_ab_test = $19, ab_test_group = $20, product_id = $21, category_id = $22,
			brand_id = $23, media_urls = $24, updated_at = $25
		WHERE id = $1
		RETURNING status, budget, impressions, clicks, conversions
	`

	err := database.Pick(r.db, tx).QueryRowxContext(ctx, query,
		ad.ID,
		ad.Title,
		ad.Description,
		ad.Type,
		ad.Placement,
		ad.Content,
		ad.Status,
		ad.StartDate,
		ad.EndDate,
		ad.ScheduleConfig,
		ad.Priority,
		ad.MaxImpressions,
		ad.MaxClicks,
		setBudget,
		ad.Budget,
		ad.TargetType,
		ad.TargetConfig,
		ad.DisplayConditions,
		ad.IsAbTest,
		ad.AbTestGroup,
		ad.ProductID,
		ad.CategoryID,
		ad.BrandID,
		ad.MediaURLs,
		ad.UpdatedAt,
		setStatus,
	).Scan(&ad.Status, &ad.Budget, &ad.Impressions, &ad.Clicks, &ad.Conversions)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAdNotFound
	}
	return err
}

// Delete removes an advertisement; its metrics cascade
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM advertisements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireOneRow(result)
}

// SetStatus unconditionally sets the status
func (r *PostgresRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE advertisements SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	return requireOneRow(result)
}

// TransitionStatus moves an advertisement from one status to another and
// reports false when it was no longer in the from status.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to Status) (bool, error) {
	result, err := database.Pick(r.db, tx).ExecContext(ctx, `
		UPDATE advertisements SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// List returns advertisements matching filter, highest priority first
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Advertisement, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	add := func(cond string, arg interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argIndex))
		args = append(args, arg)
		argIndex++
	}

	if filter.Type != nil {
		add("type = $%d", *filter.Type)
	}
	if filter.Placement != nil {
		add("placement = $%d", *filter.Placement)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.TargetType != nil {
		add("target_type = $%d", *filter.TargetType)
	}
	if filter.ProductID != nil {
		add("product_id = $%d", *filter.ProductID)
	}
	if filter.CategoryID != nil {
		add("category_id = $%d", *filter.CategoryID)
	}
	if filter.BrandID != nil {
		add("brand_id = $%d", *filter.BrandID)
	}
	if filter.IsAbTest != nil {
		add("is_ab_test = $%d", *filter.IsAbTest)
	}
	if filter.ActiveFrom != nil {
		add("(start_date <= $%d OR status = 'ACTIVE')", *filter.ActiveFrom)
	}
	if filter.ActiveTo != nil {
		add("(end_date >= $%d OR end_date IS NULL)", *filter.ActiveTo)
	}

	query := `SELECT` + adColumns + ` FROM advertisements`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY priority DESC, updated_at DESC"

	var ads []Advertisement
	if err := r.db.SelectContext(ctx, &ads, query, args...); err != nil {
		return nil, err
	}
	return ads, nil
}

// ListCandidates returns running campaigns for a placement, highest priority first
func (r *PostgresRepository) ListCandidates(ctx context.Context, placement string, now time.Time) ([]Advertisement, error) {
	query := `SELECT` + adColumns + `
		FROM advertisements
		WHERE status = 'ACTIVE'
			AND placement = $1
			AND start_date <= $2
			AND (end_date IS NULL OR end_date >= $2)
		ORDER BY priority DESC
	`

	var ads []Advertisement
	if err := r.db.SelectContext(ctx, &ads, query, placement, now); err != nil {
		return nil, err
	}
	return ads, nil
}

// ListDueForActivation returns scheduled campaigns whose start has passed
func (r *PostgresRepository) ListDueForActivation(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM advertisements WHERE status = 'SCHEDULED' AND start_date <= $1
	`, now)
	return ids, err
}

// ListDueForEnding returns running campaigns whose end has passed
func (r *PostgresRepository) ListDueForEnding(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM advertisements WHERE status = 'ACTIVE' AND end_date <= $1
	`, now)
	return ids, err
}

// IncrementCounter bumps the counter for t and returns all counters after the update
func (r *PostgresRepository) IncrementCounter(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, t admetrics.InteractionType) (Counters, error) {
	var column string
	switch t {
	case admetrics.InteractionImpression:
		column = "impressions"
	case admetrics.InteractionClick:
		column = "clicks"
	case admetrics.InteractionConversion:
		column = "conversions"
	default:
		return Counters{}, ErrInvalidInteraction
	}

	query := fmt.Sprintf(`
		UPDATE advertisements SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING impressions, clicks, conversions
	`, column)

	var c Counters
	err := database.Pick(r.db, tx).GetContext(ctx, &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Counters{}, ErrAdNotFound
	}
	return c, err
}

// DeductBudget subtracts cost only if the remaining budget covers it. It
// returns the remaining budget and whether anything was deducted.
func (r *PostgresRepository) DeductBudget(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, cost decimal.Decimal) (decimal.Decimal, bool, error) {
	var remaining decimal.Decimal
	err := database.Pick(r.db, tx).GetContext(ctx, &remaining, `
		UPDATE advertisements SET budget = budget - $2, updated_at = NOW()
		WHERE id = $1 AND budget IS NOT NULL AND budget > 0 AND budget >= $2
		RETURNING budget
	`, id, cost)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return remaining, true, nil
}

func requireOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAdNotFound
	}
	return nil
}
