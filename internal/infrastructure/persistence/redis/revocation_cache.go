package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// RevocationCache is the Redis tier of the revocation ledger. Entries are
// positive markers under a namespaced key; the TTL equals the remaining
// token lifetime, so Redis garbage-collects them at exactly the moment
// natural expiry makes them redundant.
type RevocationCache struct {
	client *redis.Client
	log    logger.Logger
}

var _ service.RevocationCache = (*RevocationCache)(nil)

// NewRevocationCache wires the cache to a client.
func NewRevocationCache(client *redis.Client, log logger.Logger) *RevocationCache {
	return &RevocationCache{client: client, log: log.WithComponent("revocation_cache")}
}

// Seed marks the JTI revoked for the given TTL.
func (c *RevocationCache) Seed(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, cacheKey(jti), "1", ttl).Err(); err != nil {
		return apperrors.ErrRevocationUnavailable(err)
	}
	return nil
}

// Lookup reports whether the JTI is marked revoked.
func (c *RevocationCache) Lookup(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, cacheKey(jti)).Result()
	if err != nil {
		return false, apperrors.ErrRevocationUnavailable(err)
	}
	return n > 0, nil
}

func cacheKey(jti string) string {
	return constants.RevocationCachePrefix + jti
}
