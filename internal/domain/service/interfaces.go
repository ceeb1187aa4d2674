// Package service holds the domain services of the token trust core: the
// token lifecycle orchestration and the hybrid revocation ledger. It depends
// on contracts only; concrete crypto, cache, and storage live under
// internal/infrastructure.
package service

import (
	"context"
	"time"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/pkg/constants"
)

// CryptoService is the signing and verification contract implemented by the
// JWT codec. Verification enforces the fixed order: algorithm pin, key
// resolution, signature, standard claims. Revocation is not its concern.
type CryptoService interface {
	SignClaims(ctx context.Context, claims *models.Claims) (token string, kid string, err error)
	ParseAndVerify(ctx context.Context, token string) (*models.Claims, error)
}

// RevocationCache is the shared fast path in front of the durable revocation
// store. Entries are positive only: present means revoked, absent means
// consult the store. A cache loss is a latency event, never a security event.
type RevocationCache interface {
	// Seed records a revoked JTI for the given TTL.
	Seed(ctx context.Context, jti string, ttl time.Duration) error

	// Lookup reports whether the JTI is present.
	Lookup(ctx context.Context, jti string) (bool, error)
}

// RevocationLedger is the hybrid revocation checkpoint consulted on every
// verification.
type RevocationLedger interface {
	// Add records a revocation. Expired entries are a no-op; re-adding an
	// existing JTI is idempotent.
	Add(ctx context.Context, entry *models.RevocationEntry) error

	// IsRevoked reports whether the JTI has been revoked. Store failures
	// surface per the configured fail policy.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// ApplyRemote seeds the caches from a revocation performed by another
	// replica. The originating replica already wrote the durable entry.
	ApplyRemote(ctx context.Context, entry *models.RevocationEntry)

	// Cleanup purges expired entries from the durable store and returns how
	// many were removed.
	Cleanup(ctx context.Context) (int64, error)
}

// RevocationPublisher fans a revocation out to sibling replicas.
type RevocationPublisher interface {
	PublishRevocation(ctx context.Context, entry *models.RevocationEntry) error
}

// IssueRequest describes one token to mint.
type IssueRequest struct {
	// Subject is the creator identifier the token is issued to.
	Subject string

	// TokenType selects access or refresh semantics.
	TokenType constants.TokenType

	// TTL overrides the configured default lifetime. Nil means use the
	// default; a set value must be positive and may not exceed the per-type
	// maximum.
	TTL *time.Duration

	// Roles are embedded as authorization hints.
	Roles []string

	// Extra carries caller-defined claims. Reserved names are rejected.
	Extra map[string]interface{}
}

// IssuedToken is the result of a successful issuance.
type IssuedToken struct {
	Token     string
	KID       string
	Claims    *models.Claims
	ExpiresAt time.Time
}

// VerifyOptions tunes a verification call.
type VerifyOptions struct {
	// ExpectedType, when set, rejects tokens of any other type. A refresh
	// token is never accepted where an access token is required.
	ExpectedType constants.TokenType

	// SkipRevocation bypasses the ledger. Reserved for offline-style checks;
	// the HTTP surface never sets it.
	SkipRevocation bool
}

// TokenService is the issuance, verification, and revocation facade.
type TokenService interface {
	// Issue mints and signs a token with the current key.
	Issue(ctx context.Context, req IssueRequest) (*IssuedToken, error)

	// Verify validates a presented token end to end and returns its claims.
	Verify(ctx context.Context, token string, opts VerifyOptions) (*models.Claims, error)

	// Revoke invalidates a presented token ahead of expiry. The token's
	// signature must verify; revoking an expired token is a no-op.
	Revoke(ctx context.Context, token, reason string) error

	// RevokeByJTI invalidates a tracked token by identifier. Administrative
	// path; the JTI must belong to a known issued token.
	RevokeByJTI(ctx context.Context, jti, reason string) error

	// RevokeAllForSubject invalidates every live tracked token of a subject
	// and returns how many were revoked.
	RevokeAllForSubject(ctx context.Context, subject, reason string) (int64, error)
}
