package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/scan-service/internal/domain"
)

// DeviceRepository defines persistence access for scanning devices.
type DeviceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	TouchLastSeen(ctx context.Context, id string) error
}

type deviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository returns a Postgres-backed implementation.
func NewDeviceRepository(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepository{pool: pool}
}

func (r *deviceRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	const query = `
        SELECT id, name, secret_hash, status, last_seen_at, created_at, updated_at
        FROM devices WHERE id=$1`

	var device domain.Device
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&device.ID,
		&device.Name,
		&device.SecretHash,
		&device.Status,
		&device.LastSeenAt,
		&device.CreatedAt,
		&device.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepository) TouchLastSeen(ctx context.Context, id string) error {
	const query = `UPDATE devices SET last_seen_at=NOW(), updated_at=NOW() WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
