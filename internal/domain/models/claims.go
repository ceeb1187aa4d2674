package models

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/veridia/tokencore/pkg/constants"
)

// Claims is the strongly typed claim set embedded in every issued token.
// Security-critical fields are named and validated; Extra is reserved for
// caller-defined, non-security-critical data only and is never consulted by
// the verifier.
type Claims struct {
	jwt.RegisteredClaims

	// TokenType distinguishes access from refresh tokens. It is immutable
	// once issued; a refresh token is never accepted where an access token
	// is required.
	TokenType constants.TokenType `json:"typ"`

	// Roles carries role or permission hints for downstream authorization.
	Roles []string `json:"roles,omitempty"`

	// Version is the token-format version stamped at issuance.
	Version int `json:"ver"`

	// Extra holds caller-supplied claims. Keys colliding with registered or
	// custom claim names are rejected at issuance.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// reservedClaimNames are the claim names callers may not override via Extra.
var reservedClaimNames = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	constants.ClaimTokenType: {}, constants.ClaimRoles: {}, constants.ClaimVersion: {},
}

// IsReservedClaim reports whether the name collides with a claim the core owns.
func IsReservedClaim(name string) bool {
	_, ok := reservedClaimNames[name]
	return ok
}

// Subject returns the subject (creator identifier) the token was issued to.
func (c *Claims) SubjectID() string {
	return c.Subject
}
