package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/scan-service/internal/domain"
)

// TargetRepository encapsulates target persistence. Target lifecycle is
// administered elsewhere; the core reads policies and toggles the emergency
// override, which must take effect for subsequent scans immediately.
type TargetRepository interface {
	Lookup(ctx context.Context, id string) (*domain.Target, error)
	SetOverride(ctx context.Context, id string, enabled bool) (*domain.Target, error)
}

type targetRepository struct {
	pool *pgxpool.Pool
}

// NewTargetRepository returns a Postgres-backed implementation.
func NewTargetRepository(pool *pgxpool.Pool) TargetRepository {
	return &targetRepository{pool: pool}
}

func (r *targetRepository) Lookup(ctx context.Context, id string) (*domain.Target, error) {
	const query = `
        SELECT id, type, name, capacity, access_policy, emergency_override, created_at, updated_at
        FROM targets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *targetRepository) SetOverride(ctx context.Context, id string, enabled bool) (*domain.Target, error) {
	const query = `
        UPDATE targets SET emergency_override=$1, updated_at=NOW()
        WHERE id=$2
        RETURNING id, type, name, capacity, access_policy, emergency_override, created_at, updated_at`
	return r.fetchSingle(ctx, query, enabled, id)
}

func (r *targetRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Target, error) {
	var (
		target     domain.Target
		policyJSON []byte
	)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&target.ID,
		&target.Type,
		&target.Name,
		&target.Capacity,
		&policyJSON,
		&target.EmergencyOverride,
		&target.CreatedAt,
		&target.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(policyJSON) > 0 {
		if err := json.Unmarshal(policyJSON, &target.Policy); err != nil {
			return nil, err
		}
	}
	return &target, nil
}
