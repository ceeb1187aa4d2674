package service

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/internal/domain/repository"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// HybridLedgerConfig tunes the revocation ledger.
type HybridLedgerConfig struct {
	// FailOpen treats a store failure during IsRevoked as "not revoked".
	// Default is fail-closed: the check fails with a typed unavailability
	// error and the caller rejects the token.
	FailOpen bool

	// LookupTimeout bounds each cache or store round trip.
	LookupTimeout time.Duration
}

// HybridRevocationLedger layers three tiers over the revocation set: an
// in-process positive cache capped at a short TTL, a shared cache, and the
// durable store as source of truth. Writes go durable-first; a cache write
// failure never loses a revocation. Store lookups on a cache miss collapse
// through singleflight so a hot revoked JTI cannot stampede the store.
type HybridRevocationLedger struct {
	repo  repository.RevocationRepository
	cache RevocationCache     // optional shared tier
	pub   RevocationPublisher // optional fan-out
	local *gocache.Cache
	group singleflight.Group
	cfg   HybridLedgerConfig
	clk   clock.Clock
	log   logger.Logger
}

// NewHybridRevocationLedger wires the ledger. cache and pub may be nil; the
// durable store is mandatory.
func NewHybridRevocationLedger(
	repo repository.RevocationRepository,
	cache RevocationCache,
	pub RevocationPublisher,
	cfg HybridLedgerConfig,
	clk clock.Clock,
	log logger.Logger,
) *HybridRevocationLedger {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 500 * time.Millisecond
	}
	return &HybridRevocationLedger{
		repo:  repo,
		cache: cache,
		pub:   pub,
		local: gocache.New(constants.RevocationL1TTLCap, 10*time.Minute),
		cfg:   cfg,
		clk:   clk,
		log:   log.WithComponent("revocation_ledger"),
	}
}

// Add records a revocation for the remaining lifetime of the token. An entry
// whose token already expired is dropped: natural expiry already rejects it,
// and storing it would only grow the ledger.
func (l *HybridRevocationLedger) Add(ctx context.Context, entry *models.RevocationEntry) error {
	ttl := entry.RemainingTTL(l.clk.Now())
	if ttl <= 0 {
		l.log.Debug(ctx, "revocation of expired token ignored", logger.String("jti", entry.JTI))
		return nil
	}

	if err := l.repo.Insert(ctx, entry); err != nil {
		if !apperrors.IsKind(err, apperrors.KindRevocationUnavailable) {
			err = apperrors.ErrRevocationUnavailable(err)
		}
		return err
	}

	l.seed(ctx, entry.JTI, ttl)

	if l.pub != nil {
		if err := l.pub.PublishRevocation(ctx, entry); err != nil {
			// Siblings converge through the durable store on cache miss.
			l.log.Warn(ctx, "revocation event not published", logger.String("jti", entry.JTI), logger.Err(err))
		}
	}
	return nil
}

// IsRevoked consults local cache, shared cache, then the durable store.
func (l *HybridRevocationLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if _, hit := l.local.Get(jti); hit {
		return true, nil
	}

	if l.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, l.cfg.LookupTimeout)
		revoked, err := l.cache.Lookup(cctx, jti)
		cancel()
		switch {
		case err != nil:
			// A degraded cache is a latency event; the store decides.
			l.log.Warn(ctx, "revocation cache lookup failed, falling through to store", logger.Err(err))
		case revoked:
			l.local.Set(jti, struct{}{}, constants.RevocationL1TTLCap)
			return true, nil
		}
	}

	revoked, err, _ := l.group.Do(jti, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(ctx, l.cfg.LookupTimeout)
		defer cancel()

		entry, err := l.repo.FindByJTI(sctx, jti)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return false, nil
			}
			return false, err
		}
		ttl := entry.RemainingTTL(l.clk.Now())
		if ttl <= 0 {
			return false, nil
		}
		l.seed(ctx, jti, ttl)
		return true, nil
	})
	if err != nil {
		if l.cfg.FailOpen {
			l.log.Warn(ctx, "revocation store unavailable, failing open", logger.String("jti", jti), logger.Err(err))
			return false, nil
		}
		if !apperrors.IsKind(err, apperrors.KindRevocationUnavailable) {
			err = apperrors.ErrRevocationUnavailable(err)
		}
		return false, err
	}
	return revoked.(bool), nil
}

// ApplyRemote seeds the caches from a sibling's revocation without touching
// the durable store.
func (l *HybridRevocationLedger) ApplyRemote(ctx context.Context, entry *models.RevocationEntry) {
	ttl := entry.RemainingTTL(l.clk.Now())
	if ttl <= 0 {
		return
	}
	l.seed(ctx, entry.JTI, ttl)
}

// Cleanup purges expired entries from the durable store. Expired entries are
// unreachable through IsRevoked, so any schedule is safe.
func (l *HybridRevocationLedger) Cleanup(ctx context.Context) (int64, error) {
	purged, err := l.repo.DeleteExpired(ctx, l.clk.Now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		l.log.Info(ctx, "expired revocation entries purged", logger.Int64("count", purged))
	}
	return purged, nil
}

// seed writes the positive entry to both cache tiers. The local tier is TTL
// capped; the shared tier carries the full remaining lifetime.
func (l *HybridRevocationLedger) seed(ctx context.Context, jti string, ttl time.Duration) {
	localTTL := ttl
	if localTTL > constants.RevocationL1TTLCap {
		localTTL = constants.RevocationL1TTLCap
	}
	l.local.Set(jti, struct{}{}, localTTL)

	if l.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, l.cfg.LookupTimeout)
		defer cancel()
		if err := l.cache.Seed(cctx, jti, ttl); err != nil {
			l.log.Warn(ctx, "revocation cache seed failed", logger.String("jti", jti), logger.Err(err))
		}
	}
}
