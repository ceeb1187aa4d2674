// Package errors defines the typed error taxonomy for the token trust core.
// Every expected verification failure is a non-exceptional, kind-tagged error
// so that callers can distinguish a retriable rejection (expired token) from a
// hostile one (bad signature) without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error into one of the failure categories callers are
// expected to branch on.
type Kind uint8

const (
	// KindUnknown is the zero value; it tags unexpected infrastructure faults.
	KindUnknown Kind = iota

	// KindMalformed tags tokens that cannot be parsed or decoded.
	KindMalformed

	// KindUnsupportedAlgorithm tags tokens whose header claims an algorithm
	// other than the pinned one, including the "none" algorithm.
	KindUnsupportedAlgorithm

	// KindUnknownKey tags tokens whose key identifier cannot be resolved.
	KindUnknownKey

	// KindInvalidSignature tags tokens that failed the cryptographic check.
	KindInvalidSignature

	// KindExpired tags tokens past their expiry; callers may trigger refresh.
	KindExpired

	// KindClaimsInvalid tags issuer/audience/type mismatches and missing claims.
	KindClaimsInvalid

	// KindRevoked tags tokens whose JTI appears in the revocation ledger.
	KindRevoked

	// KindInvalidArgument tags caller mistakes such as a non-positive TTL.
	KindInvalidArgument

	// KindNotFound tags lookups for entities that do not exist.
	KindNotFound

	// KindKeyStoreUnavailable tags durable key storage failures.
	KindKeyStoreUnavailable

	// KindRevocationUnavailable tags revocation store or cache failures when
	// the configured policy is fail-closed.
	KindRevocationUnavailable
)

// String returns the wire-stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed_token"
	case KindUnsupportedAlgorithm:
		return "unsupported_algorithm"
	case KindUnknownKey:
		return "unknown_signing_key"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindExpired:
		return "token_expired"
	case KindClaimsInvalid:
		return "claims_invalid"
	case KindRevoked:
		return "token_revoked"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindKeyStoreUnavailable:
		return "key_store_unavailable"
	case KindRevocationUnavailable:
		return "revocation_store_unavailable"
	default:
		return "unknown"
	}
}

// Error is the structured error type used throughout the core.
type Error struct {
	kind  Kind
	msg   string
	cause error
	meta  map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Kind returns the failure category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Unwrap returns the underlying cause for error-chain support.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithMeta attaches context metadata to the error and returns it.
func (e *Error) WithMeta(key string, value interface{}) *Error {
	if e.meta == nil {
		e.meta = make(map[string]interface{})
	}
	e.meta[key] = value
	return e
}

// Meta returns all attached metadata.
func (e *Error) Meta() map[string]interface{} {
	return e.meta
}

// New creates a kind-tagged error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a kind-tagged error around a cause.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the kind from an error chain. Errors that do not carry a
// kind report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ================================================================================
// Predefined Constructors
// ================================================================================

// ErrMalformedToken reports a token that could not be decoded.
func ErrMalformedToken(cause error) *Error {
	return Wrap(cause, KindMalformed, "token cannot be parsed")
}

// ErrUnsupportedAlgorithm reports a header algorithm outside the pinned set.
// Logged by callers as a potential attack signal.
func ErrUnsupportedAlgorithm(alg string) *Error {
	return New(KindUnsupportedAlgorithm, "token algorithm %q is not accepted", alg).
		WithMeta("alg", alg)
}

// ErrUnknownKey reports an unresolvable key identifier.
func ErrUnknownKey(kid string) *Error {
	return New(KindUnknownKey, "signing key %q is not known", kid).
		WithMeta("kid", kid)
}

// ErrInvalidSignature reports a failed cryptographic check.
func ErrInvalidSignature(cause error) *Error {
	return Wrap(cause, KindInvalidSignature, "token signature verification failed")
}

// ErrTokenExpired reports a token past its expiry.
func ErrTokenExpired() *Error {
	return New(KindExpired, "token has expired")
}

// ErrClaimsInvalid reports an issuer, audience, or type mismatch.
func ErrClaimsInvalid(reason string) *Error {
	return New(KindClaimsInvalid, "token claims rejected: %s", reason)
}

// ErrTokenRevoked reports a JTI present in the revocation ledger.
func ErrTokenRevoked(jti string) *Error {
	return New(KindRevoked, "token has been revoked").
		WithMeta("jti", jti)
}

// ErrInvalidArgument reports a caller mistake.
func ErrInvalidArgument(format string, args ...interface{}) *Error {
	return New(KindInvalidArgument, format, args...)
}

// ErrNotFound reports a missing entity.
func ErrNotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// ErrKeyStoreUnavailable reports durable key storage being unreachable.
func ErrKeyStoreUnavailable(cause error) *Error {
	return Wrap(cause, KindKeyStoreUnavailable, "signing key store unavailable")
}

// ErrRevocationUnavailable reports the revocation check itself failing under
// a fail-closed policy.
func ErrRevocationUnavailable(cause error) *Error {
	return Wrap(cause, KindRevocationUnavailable, "revocation store unavailable")
}

// ================================================================================
// Classification Helpers
// ================================================================================

// IsVerificationRejection reports whether the error is an expected, typed
// rejection of a presented token as opposed to an infrastructure fault.
func IsVerificationRejection(err error) bool {
	switch KindOf(err) {
	case KindMalformed, KindUnsupportedAlgorithm, KindUnknownKey,
		KindInvalidSignature, KindExpired, KindClaimsInvalid, KindRevoked:
		return true
	default:
		return false
	}
}

// IsHostileInput reports whether the rejection should be treated as a
// potential attack signal rather than ordinary token aging.
func IsHostileInput(err error) bool {
	switch KindOf(err) {
	case KindUnsupportedAlgorithm, KindInvalidSignature:
		return true
	default:
		return false
	}
}
