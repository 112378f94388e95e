package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/scan-service/internal/domain"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("not found")

// ErrAlreadyUsed is returned when marking a consumed ticket used again.
var ErrAlreadyUsed = errors.New("credential already used")

// CredentialRepository is the read-mostly store of issued credentials.
// Issuance and signing happen elsewhere; this core only looks records up and
// consumes tickets.
type CredentialRepository interface {
	Lookup(ctx context.Context, id string) (*domain.Credential, error)
	// MarkUsed flips an ACTIVE ticket to USED. Atomic and idempotent: a
	// second call for the same ticket returns ErrAlreadyUsed.
	MarkUsed(ctx context.Context, id string) error
}

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository returns a Postgres-backed implementation.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

func (r *credentialRepository) Lookup(ctx context.Context, id string) (*domain.Credential, error) {
	const query = `
        SELECT id, subject_id, subject_role, kind, issued_at, expires_at, status, created_at, updated_at
        FROM credentials WHERE id=$1`

	var cred domain.Credential
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&cred.ID,
		&cred.SubjectID,
		&cred.SubjectRole,
		&cred.Kind,
		&cred.IssuedAt,
		&cred.ExpiresAt,
		&cred.Status,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) MarkUsed(ctx context.Context, id string) error {
	const query = `
        UPDATE credentials SET status=$1, updated_at=NOW()
        WHERE id=$2 AND kind=$3 AND status=$4`

	cmd, err := r.pool.Exec(ctx, query,
		domain.CredentialStatusUsed,
		id,
		domain.CredentialKindTicket,
		domain.CredentialStatusActive,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyUsed
	}
	return nil
}
