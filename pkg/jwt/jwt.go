package jwt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUnknownKind  = errors.New("unknown token kind")
)

// Kind selects the secret and lifetime a token is signed with. Each kind
// uses its own secret so a leaked secret cannot forge the other kinds.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindTemp    Kind = "temp"
)

// Claims represents the JWT claims carried by all three token kinds.
// Access tokens set Type to the subject kind ("staff" or "customer"),
// refresh tokens set Type to "refresh" plus SubjectType, and temporary
// second-factor tokens set Type to "2fa".
type Claims struct {
	Type        string   `json:"type"`
	SubjectType string   `json:"subject_type,omitempty"`
	ShopID      string   `json:"shop_id,omitempty"`
	RoleID      string   `json:"role_id,omitempty"`
	RoleName    string   `json:"role_name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Config carries the per-kind secrets and lifetimes.
type Config struct {
	AccessSecret    string
	RefreshSecret   string
	TempSecret      string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
	TempLifetime    time.Duration
	Issuer          string
}

// Manager signs and verifies the three token kinds.
type Manager struct {
	secrets   map[Kind][]byte
	lifetimes map[Kind]time.Duration
	issuer    string
}

// NewManager creates a new token manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.TempSecret == "" {
		return nil, errors.New("all token secrets must be set")
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "beautivo-auth"
	}

	return &Manager{
		secrets: map[Kind][]byte{
			KindAccess:  []byte(cfg.AccessSecret),
			KindRefresh: []byte(cfg.RefreshSecret),
			KindTemp:    []byte(cfg.TempSecret),
		},
		lifetimes: map[Kind]time.Duration{
			KindAccess:  cfg.AccessLifetime,
			KindRefresh: cfg.RefreshLifetime,
			KindTemp:    cfg.TempLifetime,
		},
		issuer: issuer,
	}, nil
}

// Lifetime returns the configured lifetime for a token kind.
func (m *Manager) Lifetime(kind Kind) time.Duration {
	return m.lifetimes[kind]
}

// Issue signs the claims with the kind's secret and lifetime.
func (m *Manager) Issue(kind Kind, claims Claims) (string, error) {
	secret, ok := m.secrets[kind]
	if !ok {
		return "", ErrUnknownKind
	}

	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.Subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetimes[kind])),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    m.issuer,
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return signed, nil
}

// Verify validates a token against the kind's secret and returns its claims.
func (m *Manager) Verify(kind Kind, tokenString string) (*Claims, error) {
	secret, ok := m.secrets[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

var expiresInPattern = regexp.MustCompile(`^(\d+)([smhd])?$`)

// ParseExpiresIn converts a compact lifetime string ("900", "15m", "12h",
// "7d") into a duration. Unparseable input yields zero, which callers must
// treat as immediately expired.
func ParseExpiresIn(expiresIn string) time.Duration {
	match := expiresInPattern.FindStringSubmatch(expiresIn)
	if match == nil {
		return 0
	}

	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}

	switch match[2] {
	case "m":
		return time.Duration(value) * time.Minute
	case "h":
		return time.Duration(value) * time.Hour
	case "d":
		return time.Duration(value) * 24 * time.Hour
	default:
		return time.Duration(value) * time.Second
	}
}
