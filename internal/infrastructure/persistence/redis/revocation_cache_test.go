package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

func newTestCache(t *testing.T) (*RevocationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRevocationCache(client, logger.NewNoop()), mr
}

func TestSeedAndLookup(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Seed(ctx, "jti-1", time.Hour))

	revoked, err := cache.Lookup(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// The key is namespaced and carries the remaining-lifetime TTL.
	key := "tokencore:rvk:jti-1"
	assert.True(t, mr.Exists(key))
	assert.InDelta(t, time.Hour, mr.TTL(key), float64(time.Second))
}

func TestLookupMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	revoked, err := cache.Lookup(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestSeedNonPositiveTTLIsNoOp(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Seed(ctx, "jti-dead", 0))
	require.NoError(t, cache.Seed(ctx, "jti-dead", -time.Minute))
	assert.False(t, mr.Exists("tokencore:rvk:jti-dead"))
}

func TestEntryExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Seed(ctx, "jti-1", time.Minute))
	mr.FastForward(2 * time.Minute)

	revoked, err := cache.Lookup(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestErrorsAreTypedAsUnavailable(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	mr.Close()

	err := cache.Seed(ctx, "jti-1", time.Hour)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRevocationUnavailable), "got %v", err)

	_, err = cache.Lookup(ctx, "jti-1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindRevocationUnavailable), "got %v", err)
}
