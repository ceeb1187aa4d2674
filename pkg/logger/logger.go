// Package logger defines the structured logging contract for the token trust
// core. Implementations live in internal/infrastructure/monitoring; domain and
// infrastructure code depends only on this interface.
package logger

import (
	"context"
	"strings"
	"time"

	"github.com/veridia/tokencore/pkg/constants"
)

// Logger is the structured logging interface used across all components.
// Every call takes a context so implementations can attach trace and request
// identifiers.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, err error, fields ...Field)
	Fatal(ctx context.Context, msg string, err error, fields ...Field)

	// WithComponent returns a logger scoped to a named component.
	WithComponent(component string) Logger

	// WithFields returns a logger that attaches the fields to every entry.
	WithFields(fields ...Field) Logger
}

// Field is a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates an RFC 3339 time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// Err creates an error field.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with an arbitrary value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Sanitize masks values whose keys look like secret material. Implementations
// must run every field through it before emitting.
func Sanitize(key string, value interface{}) interface{} {
	sensitive := []string{
		"password", "secret", "token", "private_key", "authorization",
	}
	lower := strings.ToLower(key)
	for _, s := range sensitive {
		if strings.Contains(lower, s) {
			if str, ok := value.(string); ok && len(str) > 8 {
				return str[:4] + "***" + str[len(str)-4:]
			}
			return "***REDACTED***"
		}
	}
	return value
}

// ================================================================================
// No-op Logger
// ================================================================================

type noopLogger struct{}

// NewNoop returns a logger that discards everything. Used in tests and as a
// safe default before configuration is loaded.
func NewNoop() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(context.Context, string, ...Field)        {}
func (noopLogger) Info(context.Context, string, ...Field)         {}
func (noopLogger) Warn(context.Context, string, ...Field)         {}
func (noopLogger) Error(context.Context, string, error, ...Field) {}
func (noopLogger) Fatal(context.Context, string, error, ...Field) {}
func (n noopLogger) WithComponent(string) Logger                  { return n }
func (n noopLogger) WithFields(...Field) Logger                   { return n }

// ================================================================================
// Audit Logging
// ================================================================================

// AuditLogger emits security-relevant lifecycle events through a Logger.
type AuditLogger struct {
	log Logger
}

// NewAuditLogger creates an audit logger scoped to the audit component.
func NewAuditLogger(log Logger) *AuditLogger {
	return &AuditLogger{log: log.WithComponent("audit")}
}

// Event logs a single audit event.
func (a *AuditLogger) Event(ctx context.Context, event constants.AuditEventType, fields ...Field) {
	all := append([]Field{
		String("event_type", string(event)),
		Time("event_time", time.Now().UTC()),
	}, fields...)
	a.log.Info(ctx, "audit event", all...)
}

// TokenIssued records a successful issuance.
func (a *AuditLogger) TokenIssued(ctx context.Context, subject, jti string, tokenType constants.TokenType) {
	a.Event(ctx, constants.AuditEventTokenIssued,
		String("subject", subject),
		String("jti", jti),
		String("token_type", string(tokenType)),
	)
}

// TokenRevoked records an explicit revocation.
func (a *AuditLogger) TokenRevoked(ctx context.Context, subject, jti, reason string) {
	a.Event(ctx, constants.AuditEventTokenRevoked,
		String("subject", subject),
		String("jti", jti),
		String("reason", reason),
	)
}

// SubjectRevoked records a per-subject mass revocation.
func (a *AuditLogger) SubjectRevoked(ctx context.Context, subject, reason string, count int64) {
	a.Event(ctx, constants.AuditEventSubjectRevoked,
		String("subject", subject),
		String("reason", reason),
		Int64("revoked_count", count),
	)
}

// KeyRotated records a signing key rotation.
func (a *AuditLogger) KeyRotated(ctx context.Context, oldKID, newKID string) {
	a.Event(ctx, constants.AuditEventKeyRotated,
		String("old_kid", oldKID),
		String("new_kid", newKID),
	)
}

// VerificationRejected records a rejected verification attempt.
func (a *AuditLogger) VerificationRejected(ctx context.Context, kind string, hostile bool) {
	a.Event(ctx, constants.AuditEventVerificationRejected,
		String("rejection_kind", kind),
		Bool("hostile", hostile),
	)
}
