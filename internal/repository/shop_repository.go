package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type ShopRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewShopRepository(db *pgxpool.Pool, log zerolog.Logger) *ShopRepository {
	return &ShopRepository{
		db:  db,
		log: log,
	}
}

// GetByID retrieves a shop by ID.
func (r *ShopRepository) GetByID(ctx context.Context, shopID string) (*Shop, error) {
	shop := &Shop{}

	query := `
		SELECT id, name, timezone, created_at, updated_at
		FROM shops
		WHERE id = $1
	`

	err := r.db.QueryRow(ctx, query, shopID).Scan(
		&shop.ID, &shop.Name, &shop.Timezone, &shop.CreatedAt, &shop.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	return shop, nil
}
