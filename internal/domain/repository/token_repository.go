package repository

import (
	"context"
	"time"

	"github.com/veridia/tokencore/internal/domain/models"
)

// TokenRepository persists metadata for issued refresh tokens. Access tokens
// are deliberately not tracked; their exposure is bounded by short TTLs.
type TokenRepository interface {
	// Save persists a token record. Saving an existing JTI is an error:
	// JTIs are unique across the retention window.
	Save(ctx context.Context, record *models.TokenRecord) error

	// FindByJTI returns the record for a JTI, or a not-found error.
	FindByJTI(ctx context.Context, jti string) (*models.TokenRecord, error)

	// FindLiveBySubject returns all unrevoked, unexpired records for a
	// subject as of now. Used by per-subject mass revocation.
	FindLiveBySubject(ctx context.Context, subject string, now time.Time) ([]*models.TokenRecord, error)

	// MarkRevoked stamps a record revoked. Marking an already-revoked
	// record again is a no-op.
	MarkRevoked(ctx context.Context, jti, reason string, revokedAt time.Time) error

	// DeleteExpired purges records whose ExpiresAt precedes the cutoff and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
