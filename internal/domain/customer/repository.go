package customer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Audience is the part of a customer record that ad targeting reads
type Audience struct {
	ID              string         `db:"id"`
	CreatedAt       time.Time      `db:"created_at"`
	Interests       pq.StringArray `db:"interests"`
	CompletedOrders int            `db:"completed_orders"`
}

// IsNew reports whether the customer signed up within window of now
func (a *Audience) IsNew(now time.Time, window time.Duration) bool {
	return !a.CreatedAt.Before(now.Add(-window))
}

// IsReturning reports whether an established customer has completed an order
func (a *Audience) IsReturning(now time.Time, window time.Duration) bool {
	return !a.IsNew(now, window) && a.CompletedOrders > 0
}

// Repository reads customers and orders owned by the shop services
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new customer repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetAudience returns targeting attributes for a customer id
func (r *Repository) GetAudience(ctx context.Context, id string) (*Audience, error) {
	query := `
		SELECT c.id::text AS id, c.created_at,
			COALESCE(c.interests, '{}') AS interests,
			(SELECT COUNT(*) FROM orders o
			 WHERE o.customer_id::text = c.id::text AND o.status = 'COMPLETED') AS completed_orders
		FROM customers c
		WHERE c.id::text = $1
	`

	var a Audience
	err := r.db.GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
