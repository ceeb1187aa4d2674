package crypto

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

func newTestFileStore(t *testing.T) *FileKeyStore {
	t.Helper()
	store, err := NewFileKeyStore(t.TempDir(), logger.NewNoop())
	require.NoError(t, err)
	return store
}

func TestFileKeyStoreSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	key, err := NewSigningKey(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, key))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, key.KID, got.KID)
	assert.Equal(t, constants.SigningAlgorithm, got.Algorithm)
	assert.True(t, got.Active)
	assert.True(t, got.DeactivateAt.IsZero())
	assert.True(t, got.CreatedAt.Equal(key.CreatedAt))
	require.NotNil(t, got.Private())
	require.NotNil(t, got.Public())
	assert.Equal(t, key.Private().N, got.Private().N)
}

func TestFileKeyStorePrivateKeyIsOwnerOnly(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	key, err := NewSigningKey(time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, key))

	info, err := os.Stat(filepath.Join(store.dir, key.KID+privateKeyExt))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(privateKeyPerm), info.Mode().Perm())
}

func TestFileKeyStoreResaveUpdatesMetadataOnly(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	key, err := NewSigningKey(time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, key))

	deadline := key.CreatedAt.Add(24 * time.Hour).Truncate(time.Second)
	key.DeactivateAt = deadline
	require.NoError(t, store.Save(ctx, key))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].DeactivateAt.Equal(deadline))
	assert.Equal(t, key.Private().N, loaded[0].Private().N)
}

func TestFileKeyStoreMarkInactive(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	key, err := NewSigningKey(time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, key))

	require.NoError(t, store.MarkInactive(ctx, key.KID))
	// Idempotent on repeat.
	require.NoError(t, store.MarkInactive(ctx, key.KID))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.False(t, loaded[0].Active)
	assert.Equal(t, constants.KeyStatusInactive, loaded[0].Status())
}

func TestFileKeyStoreMarkInactiveUnknownKID(t *testing.T) {
	store := newTestFileStore(t)

	err := store.MarkInactive(context.Background(), "no-such-kid")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestFileKeyStoreDeleteRemovesAllFiles(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	key, err := NewSigningKey(time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, key))
	require.NoError(t, store.Delete(ctx, key.KID))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
