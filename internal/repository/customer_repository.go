package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type CustomerRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewCustomerRepository(db *pgxpool.Pool, log zerolog.Logger) *CustomerRepository {
	return &CustomerRepository{
		db:  db,
		log: log,
	}
}

const customerSelect = `
	SELECT id, shop_id, email, first_name, last_name, phone,
		   otp_hash, otp_expiry, created_at, updated_at
	FROM customers
`

func scanCustomer(row pgx.Row) (*Customer, error) {
	customer := &Customer{}
	err := row.Scan(
		&customer.ID, &customer.ShopID, &customer.Email,
		&customer.FirstName, &customer.LastName, &customer.Phone,
		&customer.OTPHash, &customer.OTPExpiry,
		&customer.CreatedAt, &customer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// GetByShopAndEmail retrieves a customer identity by its tenant key.
func (r *CustomerRepository) GetByShopAndEmail(ctx context.Context, shopID, email string) (*Customer, error) {
	row := r.db.QueryRow(ctx, customerSelect+` WHERE shop_id = $1 AND email = $2`, shopID, email)

	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return customer, nil
}

// GetByID retrieves a customer by ID.
func (r *CustomerRepository) GetByID(ctx context.Context, customerID string) (*Customer, error) {
	row := r.db.QueryRow(ctx, customerSelect+` WHERE id = $1`, customerID)

	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer by id: %w", err)
	}

	return customer, nil
}

// UpsertForOTP returns the customer for (shop, email), creating the record
// on first OTP request.
func (r *CustomerRepository) UpsertForOTP(ctx context.Context, shopID, email string) (*Customer, error) {
	customer, err := r.GetByShopAndEmail(ctx, shopID, email)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	customer = &Customer{
		ID:        uuid.New().String(),
		ShopID:    shopID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO customers (id, shop_id, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (shop_id, email) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, customer.ID, shopID, email, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a create race; the winner's row is authoritative.
		return r.GetByShopAndEmail(ctx, shopID, email)
	}

	r.log.Info().Str("customer_id", customer.ID).Str("shop_id", shopID).Msg("Customer created")
	return customer, nil
}

// SetOTP stores a hashed challenge code and its expiry.
func (r *CustomerRepository) SetOTP(ctx context.Context, customerID, otpHash string, expiresAt time.Time) error {
	query := `
		UPDATE customers
		SET otp_hash = $1, otp_expiry = $2, updated_at = $3
		WHERE id = $4
	`

	tag, err := r.db.Exec(ctx, query, otpHash, expiresAt, time.Now(), customerID)
	if err != nil {
		return fmt.Errorf("failed to set otp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ClearOTP removes the pending challenge, consumed or expired.
func (r *CustomerRepository) ClearOTP(ctx context.Context, customerID string) error {
	query := `
		UPDATE customers
		SET otp_hash = NULL, otp_expiry = NULL, updated_at = $1
		WHERE id = $2
	`

	if _, err := r.db.Exec(ctx, query, time.Now(), customerID); err != nil {
		return fmt.Errorf("failed to clear otp: %w", err)
	}

	return nil
}
