// Package repository provides database operations for checkout orders.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"norskform_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Order statuses. An order starts pending and moves to paid or cancelled
// exactly once; manual orders skip payment entirely.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
	StatusManual    = "manual"
)

// Order is the database model for a submitted checkout order.
type Order struct {
	ID        uuid.UUID `db:"id"`
	SessionID string    `db:"session_id"`

	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"`
	// Phone is stored in E.164 form.
	Phone string `db:"phone"`

	MunicipalityID   string `db:"municipality_id"`
	MunicipalityName string `db:"municipality_name"`
	Street           string `db:"street"`
	HouseNumber      string `db:"house_number"`
	PostalCode       string `db:"postal_code"`
	PostalArea       string `db:"postal_area"`

	PlanID         string  `db:"plan_id"`
	Status         string  `db:"status"`
	CheckoutPageID *string `db:"checkout_page_id"`
	CheckoutURL    *string `db:"checkout_url"`

	// Enrichment fields filled asynchronously from the directory lookup.
	OwnerName    *string    `db:"owner_name"`
	OwnerAddress *string    `db:"owner_address"`
	EnrichedAt   *time.Time `db:"enriched_at"`

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	PaidAt    *time.Time `db:"paid_at"`
}

const orderNotFoundMsg = "order not found"

const orderColumns = `
	id, session_id, first_name, last_name, email, phone,
	municipality_id, municipality_name, street, house_number, postal_code, postal_area,
	plan_id, status, checkout_page_id, checkout_url,
	owner_name, owner_address, enriched_at,
	created_at, updated_at, paid_at`

// Repository provides database operations for orders.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new order.
func (r *Repository) Create(ctx context.Context, order *Order) error {
	query := `
		INSERT INTO orders (
			id, session_id, first_name, last_name, email, phone,
			municipality_id, municipality_name, street, house_number, postal_code, postal_area,
			plan_id, status, checkout_page_id, checkout_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	if _, err := r.pool.Exec(ctx, query,
		order.ID, order.SessionID, order.FirstName, order.LastName, order.Email, order.Phone,
		order.MunicipalityID, order.MunicipalityName, order.Street, order.HouseNumber,
		order.PostalCode, order.PostalArea,
		order.PlanID, order.Status, order.CheckoutPageID, order.CheckoutURL,
		order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetByID fetches one order.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByCheckoutPageID fetches the order a hosted payment page belongs to.
// Webhook events carry the page ID, not our order ID.
func (r *Repository) GetByCheckoutPageID(ctx context.Context, pageID string) (*Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE checkout_page_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, pageID))
}

// SetCheckoutPage records the hosted page created for a pending order.
func (r *Repository) SetCheckoutPage(ctx context.Context, id uuid.UUID, pageID, url string) error {
	query := `
		UPDATE orders SET checkout_page_id = $2, checkout_url = $3, updated_at = now()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, pageID, url)
	if err != nil {
		return fmt.Errorf("failed to set checkout page: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(orderNotFoundMsg)
	}
	return nil
}

// MarkPaid transitions a pending order to paid. Returns false when the
// order was not pending, which makes webhook retries idempotent.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE orders SET status = $2, paid_at = now(), updated_at = now()
		WHERE id = $1 AND status = $3`

	result, err := r.pool.Exec(ctx, query, id, StatusPaid, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkCancelled transitions a pending order to cancelled.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`

	result, err := r.pool.Exec(ctx, query, id, StatusCancelled, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark order cancelled: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// SetEnrichment stores the directory-lookup result for an order.
func (r *Repository) SetEnrichment(ctx context.Context, id uuid.UUID, ownerName, ownerAddress string) error {
	query := `
		UPDATE orders SET owner_name = $2, owner_address = $3, enriched_at = now(), updated_at = now()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, ownerName, ownerAddress)
	if err != nil {
		return fmt.Errorf("failed to set enrichment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(orderNotFoundMsg)
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.SessionID, &o.FirstName, &o.LastName, &o.Email, &o.Phone,
		&o.MunicipalityID, &o.MunicipalityName, &o.Street, &o.HouseNumber,
		&o.PostalCode, &o.PostalArea,
		&o.PlanID, &o.Status, &o.CheckoutPageID, &o.CheckoutURL,
		&o.OwnerName, &o.OwnerAddress, &o.EnrichedAt,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(orderNotFoundMsg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}
