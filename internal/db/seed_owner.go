package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kavinduw/donorhub/internal/config"
	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/security"
)

// EnsureOwnerUser creates the OWNER account on first boot. Exactly one
// owner is expected operationally; when the configured email already
// exists this is a no-op.
func EnsureOwnerUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.OwnerEmail == "" || cfg.OwnerPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, cfg.OwnerEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.OwnerPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        cfg.OwnerEmail,
		PasswordHash: hash,
		Name:         cfg.OwnerName,
		Role:         user.RoleOwner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role.String(), u.CreatedAt, u.UpdatedAt,
	)

	return err
}
