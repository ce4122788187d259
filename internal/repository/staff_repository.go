package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type StaffRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewStaffRepository(db *pgxpool.Pool, log zerolog.Logger) *StaffRepository {
	return &StaffRepository{
		db:  db,
		log: log,
	}
}

const staffSelect = `
	SELECT u.id, u.shop_id, u.role_id, u.email, u.password_hash,
		   u.first_name, u.last_name, u.phone,
		   u.is_2fa_enabled, u.totp_secret, u.is_active, u.last_login_at,
		   u.created_at, u.updated_at,
		   r.id, r.name, r.permissions, r.created_at
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id
`

func scanStaff(row pgx.Row) (*StaffUser, error) {
	staff := &StaffUser{}
	var roleID, roleName *string
	var rolePermissions []string
	var roleCreatedAt *time.Time

	err := row.Scan(
		&staff.ID, &staff.ShopID, &staff.RoleID, &staff.Email, &staff.PasswordHash,
		&staff.FirstName, &staff.LastName, &staff.Phone,
		&staff.TwoFAEnabled, &staff.TOTPSecret, &staff.IsActive, &staff.LastLoginAt,
		&staff.CreatedAt, &staff.UpdatedAt,
		&roleID, &roleName, &rolePermissions, &roleCreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if roleID != nil && roleName != nil {
		role := &Role{ID: *roleID, Name: *roleName, Permissions: rolePermissions}
		if roleCreatedAt != nil {
			role.CreatedAt = *roleCreatedAt
		}
		staff.Role = role
	}

	return staff, nil
}

// GetByEmail retrieves an active staff account with its role.
func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (*StaffUser, error) {
	row := r.db.QueryRow(ctx, staffSelect+` WHERE u.email = $1 AND u.is_active = true`, email)

	staff, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get staff by email: %w", err)
	}

	return staff, nil
}

// GetByID retrieves an active staff account with its role.
func (r *StaffRepository) GetByID(ctx context.Context, staffID string) (*StaffUser, error) {
	row := r.db.QueryRow(ctx, staffSelect+` WHERE u.id = $1 AND u.is_active = true`, staffID)

	staff, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get staff by id: %w", err)
	}

	return staff, nil
}

// SetTOTPSecret stores a pending enrollment secret, overwriting any prior
// unconfirmed one. Enrollment stays unconfirmed until SetTwoFAEnabled.
func (r *StaffRepository) SetTOTPSecret(ctx context.Context, staffID, secret string) error {
	query := `
		UPDATE users
		SET totp_secret = $1, updated_at = $2
		WHERE id = $3
	`

	tag, err := r.db.Exec(ctx, query, secret, time.Now(), staffID)
	if err != nil {
		return fmt.Errorf("failed to set totp secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetTwoFAEnabled marks enrollment as confirmed.
func (r *StaffRepository) SetTwoFAEnabled(ctx context.Context, staffID string, enabled bool) error {
	query := `
		UPDATE users
		SET is_2fa_enabled = $1, updated_at = $2
		WHERE id = $3
	`

	tag, err := r.db.Exec(ctx, query, enabled, time.Now(), staffID)
	if err != nil {
		return fmt.Errorf("failed to update 2fa flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ClearTOTP disables 2FA and removes the secret in one statement.
func (r *StaffRepository) ClearTOTP(ctx context.Context, staffID string) error {
	query := `
		UPDATE users
		SET is_2fa_enabled = false, totp_secret = NULL, updated_at = $1
		WHERE id = $2
	`

	tag, err := r.db.Exec(ctx, query, time.Now(), staffID)
	if err != nil {
		return fmt.Errorf("failed to clear totp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateLastLogin records a successful login timestamp.
func (r *StaffRepository) UpdateLastLogin(ctx context.Context, staffID string) error {
	query := `
		UPDATE users
		SET last_login_at = $1
		WHERE id = $2
	`

	if _, err := r.db.Exec(ctx, query, time.Now(), staffID); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}
