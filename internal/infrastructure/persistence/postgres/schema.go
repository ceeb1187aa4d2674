package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/veridia/tokencore/pkg/errors"
)

// schema holds the DDL for both durable tables. Idempotent so every replica
// can run it at startup.
const schema = `
CREATE TABLE IF NOT EXISTS revocation_entries (
	jti        TEXT PRIMARY KEY,
	subject    TEXT        NOT NULL,
	reason     TEXT        NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revocation_entries_expires_at
	ON revocation_entries (expires_at);

CREATE TABLE IF NOT EXISTS token_records (
	jti           TEXT PRIMARY KEY,
	subject       TEXT        NOT NULL,
	token_type    TEXT        NOT NULL,
	kid           TEXT        NOT NULL,
	issued_at     TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	revoked_at    TIMESTAMPTZ,
	revoke_reason TEXT        NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_token_records_subject_live
	ON token_records (subject, expires_at) WHERE revoked_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_token_records_expires_at
	ON token_records (expires_at);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return apperrors.Wrap(err, apperrors.KindUnknown, "ensure schema")
	}
	return nil
}
