package models

import "time"

// RevocationEntry records one revoked token identifier. An entry never
// outlives the token it revokes: ExpiresAt is copied from the original
// token's expiry and cleanup may purge any entry whose ExpiresAt has passed,
// since the token would be rejected on expiry grounds regardless.
type RevocationEntry struct {
	// JTI is the unique identifier of the revoked token.
	JTI string `json:"jti"`

	// Subject is the creator identifier the token was issued to.
	Subject string `json:"subject"`

	// Reason records why the token was revoked ("logout", "breach", ...).
	Reason string `json:"reason"`

	// ExpiresAt mirrors the original token's expiry, never extended.
	ExpiresAt time.Time `json:"expires_at"`

	// RevokedAt is when the entry was created.
	RevokedAt time.Time `json:"revoked_at"`
}

// RemainingTTL returns how long the entry still matters. A non-positive
// result means the underlying token is already unusable by expiry.
func (e *RevocationEntry) RemainingTTL(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}
