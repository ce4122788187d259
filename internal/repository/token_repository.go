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

// TokenRepository is the refresh-token ledger. A signed refresh token is
// only honored while its row exists; rotation and logout delete the row.
type TokenRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewTokenRepository(db *pgxpool.Pool, log zerolog.Logger) *TokenRepository {
	return &TokenRepository{
		db:  db,
		log: log,
	}
}

// Create persists a newly issued refresh token.
func (r *TokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO refresh_tokens (id, user_id, customer_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		token.ID, token.StaffID, token.CustomerID, token.Token, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	return nil
}

// GetByToken retrieves a ledger row by exact token value.
func (r *TokenRepository) GetByToken(ctx context.Context, tokenValue string) (*RefreshToken, error) {
	token := &RefreshToken{}

	query := `
		SELECT id, user_id, customer_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`

	err := r.db.QueryRow(ctx, query, tokenValue).Scan(
		&token.ID, &token.StaffID, &token.CustomerID, &token.Token,
		&token.ExpiresAt, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

// Delete removes a ledger row and reports whether a row matched. A delete
// matching zero rows is "not found", not an error.
func (r *TokenRepository) Delete(ctx context.Context, tokenValue string) (bool, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE token = $1
	`

	tag, err := r.db.Exec(ctx, query, tokenValue)
	if err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteExpired removes ledger rows whose expiry has passed.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`

	tag, err := r.db.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	if deleted := tag.RowsAffected(); deleted > 0 {
		r.log.Info().Int64("count", deleted).Msg("Expired refresh tokens removed")
		return deleted, nil
	}

	return 0, nil
}
