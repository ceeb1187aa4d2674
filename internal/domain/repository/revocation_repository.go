// Package repository defines the persistence contracts for the token trust
// core. Implementations live under internal/infrastructure/persistence.
package repository

import (
	"context"
	"time"

	"github.com/veridia/tokencore/internal/domain/models"
)

// RevocationRepository is the durable side of the revocation ledger. The
// cache in front of it may lose entries at any time; this store is the
// source of truth on every cache miss.
type RevocationRepository interface {
	// Insert persists a revocation entry. Inserting an already-present JTI
	// is a no-op so that revocation stays idempotent.
	Insert(ctx context.Context, entry *models.RevocationEntry) error

	// FindByJTI returns the entry for a JTI, or a not-found error.
	FindByJTI(ctx context.Context, jti string) (*models.RevocationEntry, error)

	// DeleteExpired purges entries whose ExpiresAt precedes the cutoff and
	// returns how many were removed. Safe to run on a fixed interval:
	// expired entries are unreachable by normal expiry checks.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
