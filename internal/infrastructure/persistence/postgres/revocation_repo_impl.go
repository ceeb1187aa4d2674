package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/internal/domain/repository"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// RevocationRepo is the PostgreSQL-backed revocation store.
type RevocationRepo struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

var _ repository.RevocationRepository = (*RevocationRepo)(nil)

// NewRevocationRepo wires the repository to a pool.
func NewRevocationRepo(pool *pgxpool.Pool, log logger.Logger) *RevocationRepo {
	return &RevocationRepo{pool: pool, log: log.WithComponent("revocation_repo")}
}

// Insert stores the entry; conflicts on JTI are ignored so revocation stays
// idempotent under concurrency.
func (r *RevocationRepo) Insert(ctx context.Context, entry *models.RevocationEntry) error {
	const q = `
		INSERT INTO revocation_entries (jti, subject, reason, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (jti) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q,
		entry.JTI, entry.Subject, entry.Reason, entry.ExpiresAt, entry.RevokedAt); err != nil {
		return apperrors.ErrRevocationUnavailable(err)
	}
	return nil
}

// FindByJTI returns the entry or a not-found error.
func (r *RevocationRepo) FindByJTI(ctx context.Context, jti string) (*models.RevocationEntry, error) {
	const q = `
		SELECT jti, subject, reason, expires_at, revoked_at
		FROM revocation_entries
		WHERE jti = $1`
	var entry models.RevocationEntry
	err := r.pool.QueryRow(ctx, q, jti).Scan(
		&entry.JTI, &entry.Subject, &entry.Reason, &entry.ExpiresAt, &entry.RevokedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound("revocation entry %q not found", jti)
		}
		return nil, apperrors.ErrRevocationUnavailable(err)
	}
	return &entry, nil
}

// DeleteExpired purges entries expiring before the cutoff.
func (r *RevocationRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM revocation_entries WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, apperrors.ErrRevocationUnavailable(err)
	}
	return tag.RowsAffected(), nil
}
