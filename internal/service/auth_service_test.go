package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	pqtotp "github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautivo/be-plt-auth/internal/otp"
	"github.com/beautivo/be-plt-auth/internal/repository"
	jwtpkg "github.com/beautivo/be-plt-auth/pkg/jwt"
	"github.com/beautivo/be-plt-auth/pkg/password"
)

const testBcryptCost = 4

type fakeShops struct {
	shops map[string]*repository.Shop
}

func (f *fakeShops) GetByID(_ context.Context, shopID string) (*repository.Shop, error) {
	shop, ok := f.shops[shopID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return shop, nil
}

type fakeStaff struct {
	mu   sync.Mutex
	byID map[string]*repository.StaffUser
}

func (f *fakeStaff) GetByEmail(_ context.Context, email string) (*repository.StaffUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, staff := range f.byID {
		if staff.Email == email {
			copied := *staff
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStaff) GetByID(_ context.Context, staffID string) (*repository.StaffUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	staff, ok := f.byID[staffID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *staff
	return &copied, nil
}

func (f *fakeStaff) SetTOTPSecret(_ context.Context, staffID, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	staff, ok := f.byID[staffID]
	if !ok {
		return repository.ErrNotFound
	}
	staff.TOTPSecret = &secret
	return nil
}

func (f *fakeStaff) SetTwoFAEnabled(_ context.Context, staffID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	staff, ok := f.byID[staffID]
	if !ok {
		return repository.ErrNotFound
	}
	staff.TwoFAEnabled = enabled
	return nil
}

func (f *fakeStaff) ClearTOTP(_ context.Context, staffID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	staff, ok := f.byID[staffID]
	if !ok {
		return repository.ErrNotFound
	}
	staff.TwoFAEnabled = false
	staff.TOTPSecret = nil
	return nil
}

func (f *fakeStaff) UpdateLastLogin(_ context.Context, staffID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if staff, ok := f.byID[staffID]; ok {
		now := time.Now()
		staff.LastLoginAt = &now
	}
	return nil
}

type fakeCustomers struct {
	mu   sync.Mutex
	byID map[string]*repository.Customer
	next int
}

func (f *fakeCustomers) key(shopID, email string) *repository.Customer {
	for _, c := range f.byID {
		if c.ShopID == shopID && c.Email == email {
			return c
		}
	}
	return nil
}

func (f *fakeCustomers) GetByShopAndEmail(_ context.Context, shopID, email string) (*repository.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.key(shopID, email); c != nil {
		copied := *c
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCustomers) GetByID(_ context.Context, customerID string) (*repository.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[customerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCustomers) UpsertForOTP(_ context.Context, shopID, email string) (*repository.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.key(shopID, email); c != nil {
		copied := *c
		return &copied, nil
	}
	f.next++
	c := &repository.Customer{
		ID:        fmt.Sprintf("customer-%d", f.next),
		ShopID:    shopID,
		Email:     email,
		CreatedAt: time.Now(),
	}
	f.byID[c.ID] = c
	copied := *c
	return &copied, nil
}

func (f *fakeCustomers) SetOTP(_ context.Context, customerID, otpHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[customerID]
	if !ok {
		return repository.ErrNotFound
	}
	c.OTPHash = &otpHash
	c.OTPExpiry = &expiresAt
	return nil
}

func (f *fakeCustomers) ClearOTP(_ context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[customerID]; ok {
		c.OTPHash = nil
		c.OTPExpiry = nil
	}
	return nil
}

type fakeRoles struct {
	roles map[string]*repository.Role
}

func (f *fakeRoles) GetByID(_ context.Context, roleID string) (*repository.Role, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return role, nil
}

type fakeTokens struct {
	mu   sync.Mutex
	rows map[string]*repository.RefreshToken
}

func (f *fakeTokens) Create(_ context.Context, token *repository.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *token
	f.rows[token.Token] = &copied
	return nil
}

func (f *fakeTokens) GetByToken(_ context.Context, tokenValue string) (*repository.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[tokenValue]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeTokens) Delete(_ context.Context, tokenValue string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[tokenValue]; !ok {
		return false, nil
	}
	delete(f.rows, tokenValue)
	return true, nil
}

type sentMail struct {
	email string
	code  string
	shop  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (f *fakeNotifier) SendOTPEmail(_ context.Context, email, code, shopName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMail{email: email, code: code, shop: shopName})
	return nil
}

func (f *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no OTP email sent")
	return f.sent[len(f.sent)-1].code
}

type testEnv struct {
	service   *AuthService
	shops     *fakeShops
	staff     *fakeStaff
	customers *fakeCustomers
	tokens    *fakeTokens
	notifier  *fakeNotifier
	jwt       *jwtpkg.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	jwtManager, err := jwtpkg.NewManager(jwtpkg.Config{
		AccessSecret:    "test-access",
		RefreshSecret:   "test-refresh",
		TempSecret:      "test-temp",
		AccessLifetime:  15 * time.Minute,
		RefreshLifetime: 7 * 24 * time.Hour,
		TempLifetime:    5 * time.Minute,
	})
	require.NoError(t, err)

	passwordHash, err := password.Hash("Manager123!", testBcryptCost)
	require.NoError(t, err)

	shopID := "shop-1"
	env := &testEnv{
		shops: &fakeShops{shops: map[string]*repository.Shop{
			shopID: {ID: shopID, Name: "Glow Studio"},
		}},
		staff: &fakeStaff{byID: map[string]*repository.StaffUser{
			"staff-1": {
				ID:           "staff-1",
				ShopID:       &shopID,
				RoleID:       "role-1",
				Email:        "manager@glow.test",
				PasswordHash: passwordHash,
				FirstName:    "Demo",
				LastName:     "Manager",
				IsActive:     true,
			},
		}},
		customers: &fakeCustomers{byID: map[string]*repository.Customer{}},
		tokens:    &fakeTokens{rows: map[string]*repository.RefreshToken{}},
		notifier:  &fakeNotifier{},
		jwt:       jwtManager,
	}

	roles := &fakeRoles{roles: map[string]*repository.Role{
		"role-1": {ID: "role-1", Name: "manager", Permissions: []string{"bookings.read", "bookings.write"}},
	}}

	env.service = NewAuthService(
		env.shops, env.staff, env.customers, roles, env.tokens,
		otp.NewMemoryStore(), env.notifier, jwtManager,
		testBcryptCost, false, zerolog.Nop(),
	)
	return env
}

func (e *testEnv) requestOTP(t *testing.T, email string) string {
	t.Helper()
	_, err := e.service.RequestCustomerOTP(context.Background(), &RequestOTPRequest{
		ShopID: "shop-1",
		Email:  email,
	})
	require.NoError(t, err)
	return e.notifier.lastCode(t)
}

func TestRequestCustomerOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.service.RequestCustomerOTP(ctx, &RequestOTPRequest{
		ShopID: "shop-1",
		Email:  " A@X.Com ",
	})
	require.NoError(t, err)
	assert.Equal(t, "OTP sent successfully", resp.Message)
	assert.Equal(t, 600, resp.ExpiresIn)

	code := env.notifier.lastCode(t)
	assert.Len(t, code, 6)
	assert.GreaterOrEqual(t, code, "100000")
	assert.LessOrEqual(t, code, "999999")

	// Email was normalized before the customer record was created.
	customer, err := env.customers.GetByShopAndEmail(ctx, "shop-1", "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, customer.OTPHash)
	require.NotNil(t, customer.OTPExpiry)
	assert.True(t, customer.OTPExpiry.After(time.Now()))
}

func TestRequestCustomerOTPShopNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.RequestCustomerOTP(context.Background(), &RequestOTPRequest{
		ShopID: "missing",
		Email:  "a@x.com",
	})
	assert.ErrorIs(t, err, ErrShopNotFound)
}

func TestRequestCustomerOTPRateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := &RequestOTPRequest{ShopID: "shop-1", Email: "a@x.com"}
	for i := 0; i < 3; i++ {
		_, err := env.service.RequestCustomerOTP(ctx, req)
		require.NoError(t, err, "request %d", i+1)
	}

	_, err := env.service.RequestCustomerOTP(ctx, req)
	assert.ErrorIs(t, err, ErrOTPRateLimited)

	// Other identities are throttled independently.
	_, err = env.service.RequestCustomerOTP(ctx, &RequestOTPRequest{ShopID: "shop-1", Email: "b@x.com"})
	assert.NoError(t, err)
}

func TestRequestCustomerOTPDeliveryFailureIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.fail = assert.AnError

	_, err := env.service.RequestCustomerOTP(context.Background(), &RequestOTPRequest{
		ShopID: "shop-1",
		Email:  "a@x.com",
	})
	assert.NoError(t, err)
}

func TestVerifyCustomerOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.requestOTP(t, "a@x.com")

	resp, err := env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
		ShopID: "shop-1",
		Email:  "a@x.com",
		OTP:    code,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	require.NotNil(t, resp.Customer)
	assert.Equal(t, "a@x.com", resp.Customer.Email)

	claims, err := env.jwt.Verify(jwtpkg.KindAccess, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, SubjectCustomer, claims.Type)
	assert.Equal(t, "shop-1", claims.ShopID)

	// The refresh token is in the ledger.
	row, err := env.tokens.GetByToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, row.CustomerID)

	// The code is consumed; replaying it fails.
	_, err = env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
		ShopID: "shop-1", Email: "a@x.com", OTP: code,
	})
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestVerifyCustomerOTPWrongCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.requestOTP(t, "a@x.com")

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	_, err := env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
		ShopID: "shop-1", Email: "a@x.com", OTP: wrong,
	})
	assert.ErrorIs(t, err, ErrInvalidOTP)

	// The challenge survives a bad guess; the right code still works.
	_, err = env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
		ShopID: "shop-1", Email: "a@x.com", OTP: code,
	})
	assert.NoError(t, err)
}

func TestVerifyCustomerOTPAttemptsExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.requestOTP(t, "a@x.com")

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	for i := 0; i < 5; i++ {
		_, err := env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
			ShopID: "shop-1", Email: "a@x.com", OTP: wrong,
		})
		assert.ErrorIs(t, err, ErrInvalidOTP, "attempt %d", i+1)
	}

	// Even the correct code is rejected once the counter is exhausted.
	_, err := env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
		ShopID: "shop-1", Email: "a@x.com", OTP: code,
	})
	assert.ErrorIs(t, err, ErrOTPAttemptsExceeded)
}

func TestVerifyCustomerOTPExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.requestOTP(t, "a@x.com")

	customer, err := env.customers.GetByShopAndEmail(ctx, "shop-1", "a@x.com")
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	env.customers.byID[customer.ID].OTPExpiry = &past

	_, err = env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
		ShopID: "shop-1", Email: "a@x.com", OTP: code,
	})
	assert.ErrorIs(t, err, ErrInvalidOTP)

	// The stale challenge was cleared.
	customer, err = env.customers.GetByShopAndEmail(ctx, "shop-1", "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, customer.OTPHash)
	assert.Nil(t, customer.OTPExpiry)
}

func TestVerifyCustomerOTPUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.VerifyCustomerOTP(context.Background(), &VerifyOTPRequest{
		ShopID: "shop-1", Email: "nobody@x.com", OTP: "123456",
	})
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestStaffLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email:    "Manager@Glow.Test",
		Password: "Manager123!",
	})
	require.NoError(t, err)
	assert.False(t, resp.Requires2FA)
	assert.Empty(t, resp.TempToken)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	require.NotNil(t, resp.Staff)
	assert.Equal(t, "manager", resp.Staff.Role.Name)

	claims, err := env.jwt.Verify(jwtpkg.KindAccess, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, SubjectStaff, claims.Type)
	assert.Equal(t, "shop-1", claims.ShopID)
	assert.Equal(t, "role-1", claims.RoleID)
	assert.Equal(t, []string{"bookings.read", "bookings.write"}, claims.Permissions)
}

func TestStaffLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "manager@glow.test", Password: "wrong",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "nobody@glow.test", Password: "Manager123!",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// enrollTwoFA walks a staff account through setup+confirm and returns the
// shared secret.
func enrollTwoFA(t *testing.T, env *testEnv) string {
	t.Helper()
	ctx := context.Background()

	setup, err := env.service.SetupSecondFactor(ctx, "staff-1")
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.QRCode, "data:image/png;base64,")

	code, err := pqtotp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	_, err = env.service.ConfirmSecondFactor(ctx, "staff-1", code)
	require.NoError(t, err)

	return setup.Secret
}

func TestStaffLoginWithTwoFA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	secret := enrollTwoFA(t, env)

	resp, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "manager@glow.test", Password: "Manager123!",
	})
	require.NoError(t, err)
	assert.True(t, resp.Requires2FA)
	assert.NotEmpty(t, resp.TempToken)
	assert.Empty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)

	// No refresh token may exist before the second factor clears.
	assert.Empty(t, env.tokens.rows)

	code, err := pqtotp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	full, err := env.service.VerifySecondFactor(ctx, &VerifyTwoFARequest{
		TempToken: resp.TempToken,
		Code:      code,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, full.AccessToken)
	assert.NotEmpty(t, full.RefreshToken)
}

func TestVerifySecondFactorRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	enrollTwoFA(t, env)

	resp, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "manager@glow.test", Password: "Manager123!",
	})
	require.NoError(t, err)

	_, err = env.service.VerifySecondFactor(ctx, &VerifyTwoFARequest{
		TempToken: resp.TempToken,
		Code:      "000000",
	})
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = env.service.VerifySecondFactor(ctx, &VerifyTwoFARequest{
		TempToken: "garbage",
		Code:      "000000",
	})
	assert.ErrorIs(t, err, ErrInvalidToken)

	// An access token signed with a different secret is not a temp token.
	access, err := env.jwt.Issue(jwtpkg.KindAccess, jwtpkg.Claims{Type: SubjectStaff})
	require.NoError(t, err)
	_, err = env.service.VerifySecondFactor(ctx, &VerifyTwoFARequest{
		TempToken: access,
		Code:      "000000",
	})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConfirmSecondFactorWithoutSetup(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ConfirmSecondFactor(context.Background(), "staff-1", "123456")
	assert.ErrorIs(t, err, ErrTwoFANotPending)
}

func TestSetupOverwritesPendingSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.SetupSecondFactor(ctx, "staff-1")
	require.NoError(t, err)
	second, err := env.service.SetupSecondFactor(ctx, "staff-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	// Only the latest secret confirms.
	staleCode, err := pqtotp.GenerateCode(first.Secret, time.Now())
	require.NoError(t, err)
	_, err = env.service.ConfirmSecondFactor(ctx, "staff-1", staleCode)
	assert.ErrorIs(t, err, ErrInvalidCode)

	code, err := pqtotp.GenerateCode(second.Secret, time.Now())
	require.NoError(t, err)
	_, err = env.service.ConfirmSecondFactor(ctx, "staff-1", code)
	assert.NoError(t, err)
}

func TestDisableSecondFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	secret := enrollTwoFA(t, env)

	code, err := pqtotp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	// Correct code, wrong password.
	_, err = env.service.DisableSecondFactor(ctx, "staff-1", &DisableTwoFARequest{
		Password: "wrong", Code: code,
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Correct password, wrong code.
	_, err = env.service.DisableSecondFactor(ctx, "staff-1", &DisableTwoFARequest{
		Password: "Manager123!", Code: "000000",
	})
	assert.ErrorIs(t, err, ErrInvalidCode)

	// Both correct.
	code, err = pqtotp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = env.service.DisableSecondFactor(ctx, "staff-1", &DisableTwoFARequest{
		Password: "Manager123!", Code: code,
	})
	require.NoError(t, err)

	staff, err := env.staff.GetByID(ctx, "staff-1")
	require.NoError(t, err)
	assert.False(t, staff.TwoFAEnabled)
	assert.Nil(t, staff.TOTPSecret)

	_, err = env.service.DisableSecondFactor(ctx, "staff-1", &DisableTwoFARequest{
		Password: "Manager123!", Code: code,
	})
	assert.ErrorIs(t, err, ErrTwoFANotConfigured)
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	login, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "manager@glow.test", Password: "Manager123!",
	})
	require.NoError(t, err)

	rotated, err := env.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEmpty(t, rotated.RefreshToken)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// A spent refresh token is never accepted again.
	_, err = env.service.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The rotated token works.
	_, err = env.service.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshCustomerSubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.requestOTP(t, "a@x.com")

	login, err := env.service.VerifyCustomerOTP(ctx, &VerifyOTPRequest{
		ShopID: "shop-1", Email: "a@x.com", OTP: code,
	})
	require.NoError(t, err)

	rotated, err := env.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	claims, err := env.jwt.Verify(jwtpkg.KindAccess, rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, SubjectCustomer, claims.Type)
}

func TestRefreshRejectsNonRefreshToken(t *testing.T) {
	env := newTestEnv(t)

	access, err := env.jwt.Issue(jwtpkg.KindAccess, jwtpkg.Claims{Type: SubjectStaff})
	require.NoError(t, err)

	_, err = env.service.Refresh(context.Background(), access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshDeletedSubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	login, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "manager@glow.test", Password: "Manager123!",
	})
	require.NoError(t, err)

	// A deactivated account cannot refresh.
	delete(env.staff.byID, "staff-1")
	_, err = env.service.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	login, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "manager@glow.test", Password: "Manager123!",
	})
	require.NoError(t, err)

	resp, err := env.service.Logout(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "Logged out successfully", resp.Message)

	// Logging out twice is not an error.
	_, err = env.service.Logout(ctx, login.RefreshToken)
	assert.NoError(t, err)

	// The token is gone from the ledger.
	_, err = env.service.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyStaffAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	login, err := env.service.StaffLogin(ctx, &StaffLoginRequest{
		Email: "manager@glow.test", Password: "Manager123!",
	})
	require.NoError(t, err)

	staffID, err := env.service.VerifyStaffAccess(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", staffID)

	// Customer access tokens do not open staff endpoints.
	customerAccess, err := env.jwt.Issue(jwtpkg.KindAccess, jwtpkg.Claims{Type: SubjectCustomer})
	require.NoError(t, err)
	_, err = env.service.VerifyStaffAccess(customerAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateOTPCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOTPCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		require.GreaterOrEqual(t, code, "100000")
		require.LessOrEqual(t, code, "999999")
	}
}
