package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/beautivo/be-plt-auth/internal/otp"
	"github.com/beautivo/be-plt-auth/internal/repository"
	jwtpkg "github.com/beautivo/be-plt-auth/pkg/jwt"
	"github.com/beautivo/be-plt-auth/pkg/password"
	totppkg "github.com/beautivo/be-plt-auth/pkg/totp"
)

var (
	ErrShopNotFound        = errors.New("shop not found")
	ErrOTPRateLimited      = errors.New("otp request limit exceeded")
	ErrInvalidOTP          = errors.New("invalid or expired otp")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidCode         = errors.New("invalid code")
	ErrTwoFANotPending     = errors.New("2fa setup not started")
	ErrTwoFANotConfigured  = errors.New("2fa not configured")
)

const (
	// SubjectStaff and SubjectCustomer tag the two principal kinds in
	// token claims and summaries.
	SubjectStaff    = "staff"
	SubjectCustomer = "customer"

	tempTokenType    = "2fa"
	refreshTokenType = "refresh"

	totpIssuer = "Beautivo"

	otpLifetime = 10 * time.Minute
)

// ShopStore resolves tenants.
type ShopStore interface {
	GetByID(ctx context.Context, shopID string) (*repository.Shop, error)
}

// StaffStore reads and mutates staff identities.
type StaffStore interface {
	GetByEmail(ctx context.Context, email string) (*repository.StaffUser, error)
	GetByID(ctx context.Context, staffID string) (*repository.StaffUser, error)
	SetTOTPSecret(ctx context.Context, staffID, secret string) error
	SetTwoFAEnabled(ctx context.Context, staffID string, enabled bool) error
	ClearTOTP(ctx context.Context, staffID string) error
	UpdateLastLogin(ctx context.Context, staffID string) error
}

// CustomerStore reads and mutates customer identities.
type CustomerStore interface {
	GetByShopAndEmail(ctx context.Context, shopID, email string) (*repository.Customer, error)
	GetByID(ctx context.Context, customerID string) (*repository.Customer, error)
	UpsertForOTP(ctx context.Context, shopID, email string) (*repository.Customer, error)
	SetOTP(ctx context.Context, customerID, otpHash string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, customerID string) error
}

// RoleStore resolves staff roles.
type RoleStore interface {
	GetByID(ctx context.Context, roleID string) (*repository.Role, error)
}

// TokenStore is the refresh-token ledger.
type TokenStore interface {
	Create(ctx context.Context, token *repository.RefreshToken) error
	GetByToken(ctx context.Context, tokenValue string) (*repository.RefreshToken, error)
	Delete(ctx context.Context, tokenValue string) (bool, error)
}

// Notifier delivers OTP codes out-of-band.
type Notifier interface {
	SendOTPEmail(ctx context.Context, email, code, shopName string) error
}

// AuthService orchestrates credential verification, OTP challenges, 2FA
// and session token issuance for both principal kinds.
type AuthService struct {
	shops      ShopStore
	staff      StaffStore
	customers  CustomerStore
	roles      RoleStore
	tokens     TokenStore
	challenges otp.ChallengeStore
	notifier   Notifier
	jwtManager *jwtpkg.Manager

	bcryptCost  int
	development bool
	log         zerolog.Logger
}

func NewAuthService(
	shops ShopStore,
	staff StaffStore,
	customers CustomerStore,
	roles RoleStore,
	tokens TokenStore,
	challenges otp.ChallengeStore,
	notifier Notifier,
	jwtManager *jwtpkg.Manager,
	bcryptCost int,
	development bool,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		shops:       shops,
		staff:       staff,
		customers:   customers,
		roles:       roles,
		tokens:      tokens,
		challenges:  challenges,
		notifier:    notifier,
		jwtManager:  jwtManager,
		bcryptCost:  bcryptCost,
		development: development,
		log:         log,
	}
}

type RequestOTPRequest struct {
	ShopID string `json:"shopId"`
	Email  string `json:"email"`
}

type RequestOTPResponse struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"`
}

type VerifyOTPRequest struct {
	ShopID string `json:"shopId"`
	Email  string `json:"email"`
	OTP    string `json:"otp"`
}

type RoleSummary struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type StaffSummary struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      RoleSummary `json:"role"`
}

type CustomerSummary struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type CustomerLoginResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	Customer     *CustomerSummary `json:"customer"`
}

type StaffLoginResponse struct {
	Requires2FA  bool          `json:"requires2FA,omitempty"`
	TempToken    string        `json:"tempToken,omitempty"`
	AccessToken  string        `json:"accessToken,omitempty"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	Staff        *StaffSummary `json:"user,omitempty"`
}

type TwoFASetupResponse struct {
	Secret string `json:"secret"`
	QRCode string `json:"qrCode"`
}

type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// RequestCustomerOTP starts a passwordless customer login by generating,
// persisting and dispatching a 6-digit code.
func (s *AuthService) RequestCustomerOTP(ctx context.Context, req *RequestOTPRequest) (*RequestOTPResponse, error) {
	email := otp.NormalizeEmail(req.Email)

	shop, err := s.shops.GetByID(ctx, req.ShopID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}

	key := otp.Key(req.ShopID, email)
	if err := s.challenges.EnforceRequestLimit(ctx, key); err != nil {
		if errors.Is(err, otp.ErrRateLimited) {
			s.log.Warn().Str("shop_id", req.ShopID).Str("email", email).Msg("OTP request rate limited")
			return nil, ErrOTPRateLimited
		}
		return nil, err
	}

	customer, err := s.customers.UpsertForOTP(ctx, req.ShopID, email)
	if err != nil {
		return nil, err
	}

	code, err := generateOTPCode()
	if err != nil {
		return nil, err
	}

	otpHash, err := password.Hash(code, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(otpLifetime)
	if err := s.customers.SetOTP(ctx, customer.ID, otpHash, expiresAt); err != nil {
		return nil, err
	}

	if err := s.challenges.ResetAttempts(ctx, key, expiresAt); err != nil {
		return nil, err
	}

	// The code is persisted and verifiable; delivery failure must not
	// fail the request.
	if err := s.notifier.SendOTPEmail(ctx, email, code, shop.Name); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("Failed to deliver OTP email")
	}

	if s.development {
		s.log.Debug().Str("email", email).Str("otp", code).Msg("Development OTP")
	}

	return &RequestOTPResponse{
		Message:   "OTP sent successfully",
		ExpiresIn: int(otpLifetime.Seconds()),
	}, nil
}

// VerifyCustomerOTP exchanges a pending challenge code for session tokens.
// Every failure mode reports the same generic error so callers cannot
// probe which emails exist or which factor failed.
func (s *AuthService) VerifyCustomerOTP(ctx context.Context, req *VerifyOTPRequest) (*CustomerLoginResponse, error) {
	email := otp.NormalizeEmail(req.Email)

	customer, err := s.customers.GetByShopAndEmail(ctx, req.ShopID, email)
	if err != nil || customer.OTPHash == nil || customer.OTPExpiry == nil {
		return nil, ErrInvalidOTP
	}

	key := otp.Key(req.ShopID, email)
	exceeded, err := s.challenges.HasExceededAttempts(ctx, key)
	if err != nil {
		return nil, err
	}
	if exceeded {
		s.log.Warn().Str("shop_id", req.ShopID).Str("email", email).Msg("OTP attempts exceeded")
		return nil, ErrOTPAttemptsExceeded
	}

	if customer.OTPExpiry.Before(time.Now()) {
		_ = s.customers.ClearOTP(ctx, customer.ID)
		return nil, ErrInvalidOTP
	}

	valid, err := password.Verify(req.OTP, *customer.OTPHash)
	if err != nil {
		return nil, err
	}
	if !valid {
		_ = s.challenges.RegisterFailure(ctx, key)
		return nil, ErrInvalidOTP
	}

	if err := s.customers.ClearOTP(ctx, customer.ID); err != nil {
		return nil, err
	}
	_ = s.challenges.Clear(ctx, key)

	tokens, err := s.issueCustomerTokens(ctx, customer)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("customer_id", customer.ID).Str("shop_id", customer.ShopID).Msg("Customer login successful")
	return tokens, nil
}

type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffLogin verifies a password and either issues full session tokens or,
// when 2FA is enabled, a short-lived temp token for the second factor.
func (s *AuthService) StaffLogin(ctx context.Context, req *StaffLoginRequest) (*StaffLoginResponse, error) {
	staff, err := s.staff.GetByEmail(ctx, otp.NormalizeEmail(req.Email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	valid, err := password.Verify(req.Password, staff.PasswordHash)
	if err != nil || !valid {
		s.log.Warn().Str("staff_id", staff.ID).Msg("Invalid staff password")
		return nil, ErrInvalidCredentials
	}

	if staff.TwoFAEnabled {
		tempToken, err := s.jwtManager.Issue(jwtpkg.KindTemp, jwtpkg.Claims{
			Type:             tempTokenType,
			RegisteredClaims: subjectClaim(staff.ID),
		})
		if err != nil {
			return nil, err
		}

		s.log.Info().Str("staff_id", staff.ID).Msg("Staff login pending second factor")
		return &StaffLoginResponse{Requires2FA: true, TempToken: tempToken}, nil
	}

	return s.issueStaffTokens(ctx, staff)
}

type VerifyTwoFARequest struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"code"`
}

// VerifySecondFactor completes a password-verified staff login with a TOTP
// code bound to the temp token.
func (s *AuthService) VerifySecondFactor(ctx context.Context, req *VerifyTwoFARequest) (*StaffLoginResponse, error) {
	claims, err := s.jwtManager.Verify(jwtpkg.KindTemp, req.TempToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != tempTokenType {
		return nil, ErrInvalidToken
	}

	staff, err := s.staff.GetByID(ctx, claims.Subject)
	if err != nil || staff.TOTPSecret == nil {
		return nil, ErrInvalidToken
	}

	if !totppkg.Validate(req.Code, *staff.TOTPSecret) {
		s.log.Warn().Str("staff_id", staff.ID).Msg("Invalid second-factor code")
		return nil, ErrInvalidCode
	}

	return s.issueStaffTokens(ctx, staff)
}

// SetupSecondFactor generates a fresh enrollment secret and QR code for an
// authenticated staff account. Any prior unconfirmed secret is replaced.
func (s *AuthService) SetupSecondFactor(ctx context.Context, staffID string) (*TwoFASetupResponse, error) {
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	enrollment, err := totppkg.Generate(totpIssuer, staff.Email)
	if err != nil {
		return nil, err
	}

	if err := s.staff.SetTOTPSecret(ctx, staff.ID, enrollment.Secret); err != nil {
		return nil, err
	}

	s.log.Info().Str("staff_id", staff.ID).Msg("2FA enrollment started")
	return &TwoFASetupResponse{
		Secret: enrollment.Secret,
		QRCode: enrollment.QRCode,
	}, nil
}

// ConfirmSecondFactor verifies a code against the pending secret and turns
// the enrollment on.
func (s *AuthService) ConfirmSecondFactor(ctx context.Context, staffID, code string) (*MessageResponse, error) {
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil || staff.TOTPSecret == nil {
		return nil, ErrTwoFANotPending
	}

	if !totppkg.Validate(code, *staff.TOTPSecret) {
		return nil, ErrInvalidCode
	}

	if err := s.staff.SetTwoFAEnabled(ctx, staff.ID, true); err != nil {
		return nil, err
	}

	s.log.Info().Str("staff_id", staff.ID).Msg("2FA enabled")
	return &MessageResponse{Message: "2FA enabled successfully"}, nil
}

type DisableTwoFARequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// DisableSecondFactor clears 2FA. Both the account password and a current
// TOTP code are required.
func (s *AuthService) DisableSecondFactor(ctx context.Context, staffID string, req *DisableTwoFARequest) (*MessageResponse, error) {
	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil || staff.TOTPSecret == nil {
		return nil, ErrTwoFANotConfigured
	}

	valid, err := password.Verify(req.Password, staff.PasswordHash)
	if err != nil || !valid {
		return nil, ErrInvalidCredentials
	}

	if !totppkg.Validate(req.Code, *staff.TOTPSecret) {
		return nil, ErrInvalidCode
	}

	if err := s.staff.ClearTOTP(ctx, staff.ID); err != nil {
		return nil, err
	}

	s.log.Info().Str("staff_id", staff.ID).Msg("2FA disabled")
	return &MessageResponse{Message: "2FA disabled successfully"}, nil
}

// Refresh rotates a refresh token: the submitted token is invalidated and
// a fresh access/refresh pair is issued for the re-resolved subject.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPairResponse, error) {
	claims, err := s.jwtManager.Verify(jwtpkg.KindRefresh, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != refreshTokenType {
		return nil, ErrInvalidToken
	}

	stored, err := s.tokens.GetByToken(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if stored.ExpiresAt.Before(time.Now()) {
		_, _ = s.tokens.Delete(ctx, refreshToken)
		return nil, ErrInvalidToken
	}

	// Single use: the row goes away before new tokens exist, and a lost
	// delete race means someone else already spent this token.
	deleted, err := s.tokens.Delete(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !deleted {
		s.log.Warn().Str("subject", claims.Subject).Msg("Refresh token replay detected")
		return nil, ErrInvalidToken
	}

	if claims.SubjectType == SubjectCustomer || stored.CustomerID != nil {
		customer, err := s.customers.GetByID(ctx, claims.Subject)
		if err != nil {
			return nil, ErrInvalidToken
		}

		tokens, err := s.issueCustomerTokens(ctx, customer)
		if err != nil {
			return nil, err
		}
		return &TokenPairResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		}, nil
	}

	staff, err := s.staff.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	tokens, err := s.issueStaffTokens(ctx, staff)
	if err != nil {
		return nil, err
	}
	return &TokenPairResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

// Logout invalidates a refresh token. Idempotent: deleting a token that is
// already gone still succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (*MessageResponse, error) {
	if _, err := s.tokens.Delete(ctx, refreshToken); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: "Logged out successfully"}, nil
}

// VerifyStaffAccess validates a staff access token for the authenticated
// 2FA management endpoints and returns the staff ID.
func (s *AuthService) VerifyStaffAccess(tokenString string) (string, error) {
	claims, err := s.jwtManager.Verify(jwtpkg.KindAccess, tokenString)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Type != SubjectStaff {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *AuthService) issueCustomerTokens(ctx context.Context, customer *repository.Customer) (*CustomerLoginResponse, error) {
	accessToken, err := s.jwtManager.Issue(jwtpkg.KindAccess, jwtpkg.Claims{
		Type:             SubjectCustomer,
		ShopID:           customer.ShopID,
		RegisteredClaims: subjectClaim(customer.ID),
	})
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.jwtManager.Issue(jwtpkg.KindRefresh, jwtpkg.Claims{
		Type:             refreshTokenType,
		SubjectType:      SubjectCustomer,
		RegisteredClaims: subjectClaim(customer.ID),
	})
	if err != nil {
		return nil, err
	}

	record := &repository.RefreshToken{
		CustomerID: &customer.ID,
		Token:      refreshToken,
		ExpiresAt:  time.Now().Add(s.jwtManager.Lifetime(jwtpkg.KindRefresh)),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	return &CustomerLoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Customer: &CustomerSummary{
			ID:        customer.ID,
			Email:     customer.Email,
			FirstName: customer.FirstName,
			LastName:  customer.LastName,
		},
	}, nil
}

func (s *AuthService) issueStaffTokens(ctx context.Context, staff *repository.StaffUser) (*StaffLoginResponse, error) {
	role := staff.Role
	if role == nil {
		// Tolerate a missing role row; the token then carries no
		// permissions rather than blocking the login.
		resolved, err := s.roles.GetByID(ctx, staff.RoleID)
		if err == nil {
			role = resolved
		} else {
			s.log.Warn().Str("staff_id", staff.ID).Str("role_id", staff.RoleID).Msg("Role not resolvable")
		}
	}

	claims := jwtpkg.Claims{
		Type:             SubjectStaff,
		RoleID:           staff.RoleID,
		RegisteredClaims: subjectClaim(staff.ID),
	}
	if staff.ShopID != nil {
		claims.ShopID = *staff.ShopID
	}
	if role != nil {
		claims.RoleName = role.Name
		claims.Permissions = role.Permissions
	}

	accessToken, err := s.jwtManager.Issue(jwtpkg.KindAccess, claims)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.jwtManager.Issue(jwtpkg.KindRefresh, jwtpkg.Claims{
		Type:             refreshTokenType,
		SubjectType:      SubjectStaff,
		RegisteredClaims: subjectClaim(staff.ID),
	})
	if err != nil {
		return nil, err
	}

	record := &repository.RefreshToken{
		StaffID:   &staff.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(s.jwtManager.Lifetime(jwtpkg.KindRefresh)),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	if err := s.staff.UpdateLastLogin(ctx, staff.ID); err != nil {
		s.log.Warn().Err(err).Str("staff_id", staff.ID).Msg("Failed to update last login")
	}

	summary := &StaffSummary{
		ID:        staff.ID,
		Email:     staff.Email,
		FirstName: staff.FirstName,
		LastName:  staff.LastName,
		Role:      RoleSummary{ID: staff.RoleID},
	}
	if role != nil {
		summary.Role.Name = role.Name
	}

	s.log.Info().Str("staff_id", staff.ID).Msg("Staff login successful")
	return &StaffLoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Staff:        summary,
	}, nil
}

func subjectClaim(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: subject}
}

// generateOTPCode returns a uniformly distributed 6-digit code.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
