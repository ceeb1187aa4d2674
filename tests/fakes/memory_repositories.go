// Package fakes provides in-memory test doubles for the persistence and
// messaging contracts. They are deterministic, safe for concurrent use, and
// support error injection through their Err fields.
package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/veridia/tokencore/internal/domain/models"
	apperrors "github.com/veridia/tokencore/pkg/errors"
)

// MemoryRevocationRepository is an in-memory repository.RevocationRepository.
type MemoryRevocationRepository struct {
	mu      sync.RWMutex
	entries map[string]models.RevocationEntry

	// Err, when set, fails every call with the given error.
	Err error
}

// NewMemoryRevocationRepository creates an empty repository.
func NewMemoryRevocationRepository() *MemoryRevocationRepository {
	return &MemoryRevocationRepository{entries: make(map[string]models.RevocationEntry)}
}

// Insert stores the entry; re-inserting a JTI is a no-op.
func (r *MemoryRevocationRepository) Insert(ctx context.Context, entry *models.RevocationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, exists := r.entries[entry.JTI]; exists {
		return nil
	}
	r.entries[entry.JTI] = *entry
	return nil
}

// FindByJTI returns the entry or a not-found error.
func (r *MemoryRevocationRepository) FindByJTI(ctx context.Context, jti string) (*models.RevocationEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	entry, ok := r.entries[jti]
	if !ok {
		return nil, apperrors.ErrNotFound("revocation entry %q not found", jti)
	}
	return &entry, nil
}

// DeleteExpired removes entries expiring before the cutoff.
func (r *MemoryRevocationRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var purged int64
	for jti, entry := range r.entries {
		if entry.ExpiresAt.Before(cutoff) {
			delete(r.entries, jti)
			purged++
		}
	}
	return purged, nil
}

// Len reports how many entries are stored.
func (r *MemoryRevocationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// MemoryTokenRepository is an in-memory repository.TokenRepository.
type MemoryTokenRepository struct {
	mu      sync.RWMutex
	records map[string]models.TokenRecord

	// Err, when set, fails every call with the given error.
	Err error
}

// NewMemoryTokenRepository creates an empty repository.
func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{records: make(map[string]models.TokenRecord)}
}

// Save stores a new record; duplicate JTIs are rejected.
func (r *MemoryTokenRepository) Save(ctx context.Context, record *models.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, exists := r.records[record.JTI]; exists {
		return apperrors.ErrInvalidArgument("token record %q already exists", record.JTI)
	}
	r.records[record.JTI] = *record
	return nil
}

// FindByJTI returns the record or a not-found error.
func (r *MemoryTokenRepository) FindByJTI(ctx context.Context, jti string) (*models.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	record, ok := r.records[jti]
	if !ok {
		return nil, apperrors.ErrNotFound("token record %q not found", jti)
	}
	return &record, nil
}

// FindLiveBySubject returns unrevoked, unexpired records for the subject.
func (r *MemoryTokenRepository) FindLiveBySubject(ctx context.Context, subject string, now time.Time) ([]*models.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var live []*models.TokenRecord
	for _, record := range r.records {
		if record.Subject == subject && record.Live(now) {
			c := record
			live = append(live, &c)
		}
	}
	return live, nil
}

// MarkRevoked stamps a record revoked; repeating is a no-op.
func (r *MemoryTokenRepository) MarkRevoked(ctx context.Context, jti, reason string, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	record, ok := r.records[jti]
	if !ok {
		return apperrors.ErrNotFound("token record %q not found", jti)
	}
	if record.RevokedAt != nil {
		return nil
	}
	at := revokedAt
	record.RevokedAt = &at
	record.RevokeReason = reason
	r.records[jti] = record
	return nil
}

// DeleteExpired removes records expiring before the cutoff.
func (r *MemoryTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var purged int64
	for jti, record := range r.records {
		if record.ExpiresAt.Before(cutoff) {
			delete(r.records, jti)
			purged++
		}
	}
	return purged, nil
}
