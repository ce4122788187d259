package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type RoleRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewRoleRepository(db *pgxpool.Pool, log zerolog.Logger) *RoleRepository {
	return &RoleRepository{
		db:  db,
		log: log,
	}
}

// GetByID retrieves a role with its permission set.
func (r *RoleRepository) GetByID(ctx context.Context, roleID string) (*Role, error) {
	role := &Role{}

	query := `
		SELECT id, name, permissions, created_at
		FROM roles
		WHERE id = $1
	`

	err := r.db.QueryRow(ctx, query, roleID).Scan(
		&role.ID, &role.Name, &role.Permissions, &role.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}
