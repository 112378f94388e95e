package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/scan-service/internal/domain"
)

// AdminRepository defines persistence access for operator accounts.
type AdminRepository interface {
	GetByID(ctx context.Context, id string) (*domain.AdminAccount, error)
	GetByEmail(ctx context.Context, email string) (*domain.AdminAccount, error)
}

type adminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository returns a Postgres-backed implementation.
func NewAdminRepository(pool *pgxpool.Pool) AdminRepository {
	return &adminRepository{pool: pool}
}

const adminColumns = `id, email, password_hash, created_at, updated_at`

func (r *adminRepository) GetByID(ctx context.Context, id string) (*domain.AdminAccount, error) {
	return r.fetchSingle(ctx, `SELECT `+adminColumns+` FROM admin_accounts WHERE id=$1`, id)
}

func (r *adminRepository) GetByEmail(ctx context.Context, email string) (*domain.AdminAccount, error) {
	return r.fetchSingle(ctx, `SELECT `+adminColumns+` FROM admin_accounts WHERE email=$1`, email)
}

func (r *adminRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.AdminAccount, error) {
	var admin domain.AdminAccount
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &admin, nil
}
