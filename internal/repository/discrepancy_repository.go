package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/scan-service/internal/domain"
)

// DiscrepancyRepository stores provisional-vs-authoritative conflicts found at
// reconciliation, for the admin review queue.
type DiscrepancyRepository interface {
	Create(ctx context.Context, d *domain.Discrepancy) error
	List(ctx context.Context, includeReviewed bool, limit, offset int) ([]domain.Discrepancy, error)
	MarkReviewed(ctx context.Context, id string) (*domain.Discrepancy, error)
}

type discrepancyRepository struct {
	pool *pgxpool.Pool
}

// NewDiscrepancyRepository returns a Postgres-backed implementation.
func NewDiscrepancyRepository(pool *pgxpool.Pool) DiscrepancyRepository {
	return &discrepancyRepository{pool: pool}
}

func (r *discrepancyRepository) Create(ctx context.Context, d *domain.Discrepancy) error {
	const query = `
        INSERT INTO discrepancies
            (credential_id, target_id, device_id, local_sequence, captured_at,
             provisional_outcome, provisional_reason, authoritative_outcome, authoritative_reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, reviewed, created_at`

	return r.pool.QueryRow(ctx, query,
		d.CredentialID,
		d.TargetID,
		d.DeviceID,
		d.LocalSequence,
		d.CapturedAt,
		d.ProvisionalOutcome,
		d.ProvisionalReason,
		d.AuthoritativeOutcome,
		d.AuthoritativeReason,
	).Scan(&d.ID, &d.Reviewed, &d.CreatedAt)
}

const discrepancyColumns = `id, credential_id, target_id, device_id, local_sequence, captured_at,
        provisional_outcome, provisional_reason, authoritative_outcome, authoritative_reason, reviewed, created_at`

func (r *discrepancyRepository) List(ctx context.Context, includeReviewed bool, limit, offset int) ([]domain.Discrepancy, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + discrepancyColumns + ` FROM discrepancies`
	if !includeReviewed {
		query += ` WHERE reviewed=false`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Discrepancy
	for rows.Next() {
		var d domain.Discrepancy
		if err := scanDiscrepancy(rows, &d); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *discrepancyRepository) MarkReviewed(ctx context.Context, id string) (*domain.Discrepancy, error) {
	query := `UPDATE discrepancies SET reviewed=true WHERE id=$1 RETURNING ` + discrepancyColumns

	var d domain.Discrepancy
	if err := scanDiscrepancy(r.pool.QueryRow(ctx, query, id), &d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanDiscrepancy(row rowScanner, d *domain.Discrepancy) error {
	return row.Scan(
		&d.ID,
		&d.CredentialID,
		&d.TargetID,
		&d.DeviceID,
		&d.LocalSequence,
		&d.CapturedAt,
		&d.ProvisionalOutcome,
		&d.ProvisionalReason,
		&d.AuthoritativeOutcome,
		&d.AuthoritativeReason,
		&d.Reviewed,
		&d.CreatedAt,
	)
}
