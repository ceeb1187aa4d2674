// Package constants defines system-wide constants for the token trust core.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Token Type Constants
// ================================================================================

// TokenType represents the type of an issued token.
type TokenType string

const (
	// TokenTypeAccess represents a short-lived access token
	TokenTypeAccess TokenType = "access"

	// TokenTypeRefresh represents a long-lived refresh token
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether the token type is one of the known values.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// ================================================================================
// Signing Key Constants
// ================================================================================

// SigningAlgorithm is the single signature algorithm accepted by the verifier.
// The algorithm is pinned at the verifier and never negotiated from token input.
const SigningAlgorithm = "RS256"

// RSAKeyBits is the modulus size for generated signing keys.
const RSAKeyBits = 2048

// KeyStatus represents the lifecycle status of a signing key.
type KeyStatus string

const (
	// KeyStatusActive indicates the key may sign new tokens and verify existing ones
	KeyStatusActive KeyStatus = "active"

	// KeyStatusInactive indicates the key may only verify tokens already issued under it
	KeyStatusInactive KeyStatus = "inactive"
)

// ================================================================================
// Lifecycle Defaults
// ================================================================================

const (
	// DefaultRotationInterval is how old the current key may grow before
	// RotationDue reports true (30 days).
	DefaultRotationInterval = 30 * 24 * time.Hour

	// DefaultGracePeriod is how long a superseded key keeps verifying tokens
	// after it has stopped signing new ones (24 hours).
	DefaultGracePeriod = 24 * time.Hour

	// AccessTokenDefaultTTL is the default lifetime for access tokens (15 minutes)
	AccessTokenDefaultTTL = 15 * time.Minute

	// AccessTokenMaxTTL is the maximum allowed lifetime for access tokens (1 hour)
	AccessTokenMaxTTL = 1 * time.Hour

	// RefreshTokenDefaultTTL is the default lifetime for refresh tokens (30 days)
	RefreshTokenDefaultTTL = 30 * 24 * time.Hour

	// RefreshTokenMaxTTL is the maximum allowed lifetime for refresh tokens (90 days)
	RefreshTokenMaxTTL = 90 * 24 * time.Hour

	// MaxTokenTTL is the longest lifetime any token may carry. Key retention
	// is derived from it: a key may not be purged until MaxTokenTTL plus the
	// grace period has elapsed since its creation.
	MaxTokenTTL = RefreshTokenMaxTTL
)

// ================================================================================
// Cache Key Namespaces
// ================================================================================

const (
	// RevocationCachePrefix namespaces revocation entries in the shared cache
	RevocationCachePrefix = "tokencore:rvk:"

	// RevocationL1TTLCap bounds the in-process (L1) lifetime of a revocation
	// entry; the shared cache and the durable store carry the full TTL.
	RevocationL1TTLCap = 5 * time.Minute
)

// ================================================================================
// Claims Constants
// ================================================================================

const (
	// ClaimsVersion is the current token-format version stamped into every token
	ClaimsVersion = 1

	// ClaimTokenType is the custom claim carrying the token type
	ClaimTokenType = "typ"

	// ClaimRoles is the custom claim carrying role hints
	ClaimRoles = "roles"

	// ClaimVersion is the custom claim carrying the token-format version
	ClaimVersion = "ver"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is a dedicated type for context values to avoid collisions.
type ContextKey string

const (
	// ContextKeyRequestID carries the request identifier through the call chain
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeySubject carries the authenticated subject through the call chain
	ContextKeySubject ContextKey = "subject"
)

// ================================================================================
// Audit Event Types
// ================================================================================

// AuditEventType classifies security-relevant events for audit logging.
type AuditEventType string

const (
	// AuditEventTokenIssued records a successful token issuance
	AuditEventTokenIssued AuditEventType = "token.issued"

	// AuditEventTokenRevoked records an explicit token revocation
	AuditEventTokenRevoked AuditEventType = "token.revoked"

	// AuditEventSubjectRevoked records a per-subject mass revocation
	AuditEventSubjectRevoked AuditEventType = "subject.revoked"

	// AuditEventKeyRotated records a signing key rotation
	AuditEventKeyRotated AuditEventType = "key.rotated"

	// AuditEventKeyDeactivated records a grace-period key deactivation
	AuditEventKeyDeactivated AuditEventType = "key.deactivated"

	// AuditEventVerificationRejected records a rejected verification attempt
	AuditEventVerificationRejected AuditEventType = "token.rejected"
)
