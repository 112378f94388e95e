package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/scan-service/internal/domain"
)

// LedgerFilter captures audit export parameters.
type LedgerFilter struct {
	CredentialID *string
	TargetID     *string
	DeviceID     *string
	Outcome      *domain.ScanOutcome
	Source       *domain.ScanSource
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// LedgerRepository is the append-only audit log of scan attempts. Rows are
// never updated or deleted. The unique (device_id, local_sequence) key makes
// replays structurally idempotent: a duplicate append is a no-op.
type LedgerRepository interface {
	// Append stores the attempt. Returns inserted=false when an attempt
	// with the same (device_id, local_sequence) already exists.
	Append(ctx context.Context, attempt *domain.ScanAttempt) (inserted bool, err error)
	GetByDeviceSequence(ctx context.Context, deviceID string, localSequence int64) (*domain.ScanAttempt, error)
	// HasGrantedEntry reports whether a granted ENTRY for the pair exists;
	// it gates ticket exits.
	HasGrantedEntry(ctx context.Context, credentialID, targetID string) (bool, error)
	ListWithFilter(ctx context.Context, filter LedgerFilter) ([]domain.ScanAttempt, error)
}

type ledgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a Postgres-backed implementation.
func NewLedgerRepository(pool *pgxpool.Pool) LedgerRepository {
	return &ledgerRepository{pool: pool}
}

func (r *ledgerRepository) Append(ctx context.Context, attempt *domain.ScanAttempt) (bool, error) {
	const query = `
        INSERT INTO scan_attempts
            (credential_id, target_id, scan_type, device_id, local_sequence,
             captured_at, processed_at, outcome, denial_reason, source, occupancy_after)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (device_id, local_sequence) DO NOTHING
        RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		attempt.CredentialID,
		attempt.TargetID,
		attempt.ScanType,
		attempt.DeviceID,
		attempt.LocalSequence,
		attempt.CapturedAt,
		attempt.ProcessedAt,
		attempt.Outcome,
		attempt.DenialReason,
		attempt.Source,
		attempt.OccupancyAfter,
	).Scan(&attempt.ID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const ledgerColumns = `id, credential_id, target_id, scan_type, device_id, local_sequence,
        captured_at, processed_at, outcome, denial_reason, source, occupancy_after`

func (r *ledgerRepository) GetByDeviceSequence(ctx context.Context, deviceID string, localSequence int64) (*domain.ScanAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM scan_attempts WHERE device_id=$1 AND local_sequence=$2`, ledgerColumns)

	var attempt domain.ScanAttempt
	if err := scanAttemptRow(r.pool.QueryRow(ctx, query, deviceID, localSequence), &attempt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *ledgerRepository) HasGrantedEntry(ctx context.Context, credentialID, targetID string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM scan_attempts
            WHERE credential_id=$1 AND target_id=$2 AND scan_type=$3 AND outcome IN ($4,$5)
        )`
	var exists bool
	err := r.pool.QueryRow(ctx, query,
		credentialID,
		targetID,
		domain.ScanTypeEntry,
		domain.OutcomeGranted,
		domain.OutcomeGrantedWithAnomaly,
	).Scan(&exists)
	return exists, err
}

func (r *ledgerRepository) ListWithFilter(ctx context.Context, filter LedgerFilter) ([]domain.ScanAttempt, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CredentialID != nil {
		args = append(args, *filter.CredentialID)
		clauses = append(clauses, fmt.Sprintf("credential_id=$%d", len(args)))
	}
	if filter.TargetID != nil {
		args = append(args, *filter.TargetID)
		clauses = append(clauses, fmt.Sprintf("target_id=$%d", len(args)))
	}
	if filter.DeviceID != nil {
		args = append(args, *filter.DeviceID)
		clauses = append(clauses, fmt.Sprintf("device_id=$%d", len(args)))
	}
	if filter.Outcome != nil {
		args = append(args, *filter.Outcome)
		clauses = append(clauses, fmt.Sprintf("outcome=$%d", len(args)))
	}
	if filter.Source != nil {
		args = append(args, *filter.Source)
		clauses = append(clauses, fmt.Sprintf("source=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("captured_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("captured_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM scan_attempts WHERE %s ORDER BY captured_at ASC, device_id ASC, local_sequence ASC LIMIT %d OFFSET %d`,
		ledgerColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ScanAttempt
	for rows.Next() {
		var attempt domain.ScanAttempt
		if err := scanAttemptRow(rows, &attempt); err != nil {
			return nil, err
		}
		result = append(result, attempt)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttemptRow(row rowScanner, attempt *domain.ScanAttempt) error {
	return row.Scan(
		&attempt.ID,
		&attempt.CredentialID,
		&attempt.TargetID,
		&attempt.ScanType,
		&attempt.DeviceID,
		&attempt.LocalSequence,
		&attempt.CapturedAt,
		&attempt.ProcessedAt,
		&attempt.Outcome,
		&attempt.DenialReason,
		&attempt.Source,
		&attempt.OccupancyAfter,
	)
}
