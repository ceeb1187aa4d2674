package models

import (
	"time"

	"github.com/veridia/tokencore/pkg/constants"
)

// TokenRecord is the durable metadata kept for issued refresh tokens. It is
// what makes per-subject mass revocation possible: access tokens are
// short-lived by design and are not tracked, so their exposure is bounded by
// natural expiry instead.
type TokenRecord struct {
	// JTI is the unique token identifier.
	JTI string `json:"jti" db:"jti"`

	// Subject is the creator identifier the token was issued to.
	Subject string `json:"subject" db:"subject"`

	// TokenType is recorded for audit queries; only refresh tokens are saved.
	TokenType constants.TokenType `json:"token_type" db:"token_type"`

	// KID is the identifier of the key that signed the token.
	KID string `json:"kid" db:"kid"`

	// IssuedAt is when the token was created.
	IssuedAt time.Time `json:"issued_at" db:"issued_at"`

	// ExpiresAt is when the token expires.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// RevokedAt is when the token was revoked; nil while it is live.
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`

	// RevokeReason records why the token was revoked, empty while live.
	RevokeReason string `json:"revoke_reason,omitempty" db:"revoke_reason"`
}

// Live reports whether the record is unrevoked and unexpired as of now.
func (r *TokenRecord) Live(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}
