package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/internal/domain/repository"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// pgUniqueViolation is the SQLSTATE for duplicate key errors.
const pgUniqueViolation = "23505"

// TokenRepo is the PostgreSQL-backed store of issued token metadata.
type TokenRepo struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

var _ repository.TokenRepository = (*TokenRepo)(nil)

// NewTokenRepo wires the repository to a pool.
func NewTokenRepo(pool *pgxpool.Pool, log logger.Logger) *TokenRepo {
	return &TokenRepo{pool: pool, log: log.WithComponent("token_repo")}
}

// Save inserts a new record. Duplicate JTIs are a caller error: identifiers
// are generated unique at issuance.
func (r *TokenRepo) Save(ctx context.Context, record *models.TokenRecord) error {
	const q = `
		INSERT INTO token_records (jti, subject, token_type, kid, issued_at, expires_at, revoked_at, revoke_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, q,
		record.JTI, record.Subject, string(record.TokenType), record.KID,
		record.IssuedAt, record.ExpiresAt, record.RevokedAt, record.RevokeReason)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.ErrInvalidArgument("token record %q already exists", record.JTI)
		}
		return apperrors.Wrap(err, apperrors.KindUnknown, "save token record")
	}
	return nil
}

// FindByJTI returns the record or a not-found error.
func (r *TokenRepo) FindByJTI(ctx context.Context, jti string) (*models.TokenRecord, error) {
	const q = `
		SELECT jti, subject, token_type, kid, issued_at, expires_at, revoked_at, revoke_reason
		FROM token_records
		WHERE jti = $1`
	record, err := scanTokenRecord(r.pool.QueryRow(ctx, q, jti))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound("token record %q not found", jti)
		}
		return nil, apperrors.Wrap(err, apperrors.KindUnknown, "find token record")
	}
	return record, nil
}

// FindLiveBySubject returns unrevoked records that expire after now.
func (r *TokenRepo) FindLiveBySubject(ctx context.Context, subject string, now time.Time) ([]*models.TokenRecord, error) {
	const q = `
		SELECT jti, subject, token_type, kid, issued_at, expires_at, revoked_at, revoke_reason
		FROM token_records
		WHERE subject = $1 AND revoked_at IS NULL AND expires_at > $2`
	rows, err := r.pool.Query(ctx, q, subject, now)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnknown, "find live token records")
	}
	defer rows.Close()

	var records []*models.TokenRecord
	for rows.Next() {
		record, err := scanTokenRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindUnknown, "scan token record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnknown, "iterate token records")
	}
	return records, nil
}

// MarkRevoked stamps a live record revoked; an already-revoked record is
// left untouched.
func (r *TokenRepo) MarkRevoked(ctx context.Context, jti, reason string, revokedAt time.Time) error {
	const q = `
		UPDATE token_records
		SET revoked_at = $2, revoke_reason = $3
		WHERE jti = $1 AND revoked_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, jti, revokedAt, reason)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindUnknown, "mark token revoked")
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "already revoked" (no-op) from "never existed".
		if _, err := r.FindByJTI(ctx, jti); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpired purges records expiring before the cutoff.
func (r *TokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM token_records WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindUnknown, "delete expired token records")
	}
	return tag.RowsAffected(), nil
}

func scanTokenRecord(row pgx.Row) (*models.TokenRecord, error) {
	var record models.TokenRecord
	var tokenType string
	if err := row.Scan(
		&record.JTI, &record.Subject, &tokenType, &record.KID,
		&record.IssuedAt, &record.ExpiresAt, &record.RevokedAt, &record.RevokeReason); err != nil {
		return nil, err
	}
	record.TokenType = constants.TokenType(tokenType)
	return &record, nil
}
