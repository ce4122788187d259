package repository

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Shop represents a tenant of the platform.
type Shop struct {
	ID        string
	Name      string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role represents a staff role with its permission set.
type Role struct {
	ID          string
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// StaffUser represents a staff account scoped to a shop. TOTPSecret is set
// during 2FA enrollment; TwoFAEnabled flips only after the secret has been
// confirmed with a valid code.
type StaffUser struct {
	ID           string
	ShopID       *string
	RoleID       string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        *string
	TwoFAEnabled bool
	TOTPSecret   *string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Role is populated by lookups that join the role row.
	Role *Role
}

// Customer represents a passwordless customer identity, unique per
// (shop, email). OTPHash/OTPExpiry hold the pending login challenge.
type Customer struct {
	ID        string
	ShopID    string
	Email     string
	FirstName *string
	LastName  *string
	Phone     *string
	OTPHash   *string
	OTPExpiry *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshToken is a ledger row for an issued refresh token. Exactly one of
// StaffID/CustomerID is set, identifying the owner kind.
type RefreshToken struct {
	ID         string
	StaffID    *string
	CustomerID *string
	Token      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
