package crypto

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, clk clock.Clock, cfg KeyManagerConfig) (*KeyManager, *FileKeyStore) {
	t.Helper()
	store := newTestFileStore(t)
	m := NewKeyManager(store, cfg, clk, logger.NewNoop(), logger.NewAuditLogger(logger.NewNoop()))
	t.Cleanup(m.Shutdown)
	return m, store
}

func TestInitializeGeneratesFirstKey(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	m, store := newTestManager(t, clk, KeyManagerConfig{})

	require.NoError(t, m.Initialize(ctx))

	kid, private, err := m.CurrentSigningKey()
	require.NoError(t, err)
	assert.NotEmpty(t, kid)
	require.NotNil(t, private)

	// The generated key was durably saved before ready.
	persisted, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, kid, persisted[0].KID)
	assert.True(t, persisted[0].Active)
}

func TestInitializeAdoptsNewestActiveKey(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	store := newTestFileStore(t)

	older, err := NewSigningKey(testEpoch.Add(-48 * time.Hour))
	require.NoError(t, err)
	newer, err := NewSigningKey(testEpoch.Add(-1 * time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	m := NewKeyManager(store, KeyManagerConfig{}, clk, logger.NewNoop(), nil)
	defer m.Shutdown()
	require.NoError(t, m.Initialize(ctx))

	kid, _, err := m.CurrentSigningKey()
	require.NoError(t, err)
	assert.Equal(t, newer.KID, kid)

	// No extra key was generated.
	persisted, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestInitializeAppliesMissedDeactivation(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	store := newTestFileStore(t)

	stale, err := NewSigningKey(testEpoch.Add(-72 * time.Hour))
	require.NoError(t, err)
	stale.DeactivateAt = testEpoch.Add(-time.Hour)
	current, err := NewSigningKey(testEpoch.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, stale))
	require.NoError(t, store.Save(ctx, current))

	m := NewKeyManager(store, KeyManagerConfig{}, clk, logger.NewNoop(), nil)
	defer m.Shutdown()
	require.NoError(t, m.Initialize(ctx))

	kid, _, err := m.CurrentSigningKey()
	require.NoError(t, err)
	assert.Equal(t, current.KID, kid)

	persisted, err := store.LoadAll(ctx)
	require.NoError(t, err)
	for _, k := range persisted {
		if k.KID == stale.KID {
			assert.False(t, k.Active)
		}
	}
}

func TestRotatePromotesNewKeyAndKeepsOldVerifying(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	grace := 24 * time.Hour
	m, _ := newTestManager(t, clk, KeyManagerConfig{GracePeriod: grace})
	require.NoError(t, m.Initialize(ctx))

	oldKID, _, err := m.CurrentSigningKey()
	require.NoError(t, err)

	clk.Advance(time.Hour)
	newKID, err := m.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, oldKID, newKID)

	kid, _, err := m.CurrentSigningKey()
	require.NoError(t, err)
	assert.Equal(t, newKID, kid)

	// Old key still resolves for verification during the grace period.
	pub, err := m.VerificationKey(oldKID)
	require.NoError(t, err)
	assert.NotNil(t, pub)

	// Grace elapses: old key flips inactive but keeps verifying.
	clk.Advance(grace)
	require.NoError(t, m.Reconcile(ctx))

	pub, err = m.VerificationKey(oldKID)
	require.NoError(t, err)
	assert.NotNil(t, pub)
	for _, k := range m.Keys() {
		if k.KID == oldKID {
			assert.False(t, k.Active)
		}
		if k.KID == newKID {
			assert.True(t, k.Active)
		}
	}
}

func TestRotateLeavesCurrentUntouchedWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	store := newTestFileStore(t)
	failing := &flakyKeyStore{KeyStore: store}

	m := NewKeyManager(failing, KeyManagerConfig{}, clk, logger.NewNoop(), nil)
	defer m.Shutdown()
	require.NoError(t, m.Initialize(ctx))
	oldKID, _, err := m.CurrentSigningKey()
	require.NoError(t, err)

	failing.failSave = true
	_, err = m.Rotate(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindKeyStoreUnavailable))

	kid, _, err := m.CurrentSigningKey()
	require.NoError(t, err)
	assert.Equal(t, oldKID, kid)
}

func TestRotationDueTracksCurrentKeyAge(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	interval := 30 * 24 * time.Hour
	m, _ := newTestManager(t, clk, KeyManagerConfig{RotationInterval: interval})
	require.NoError(t, m.Initialize(ctx))

	assert.False(t, m.RotationDue())

	clk.Advance(interval - time.Second)
	assert.False(t, m.RotationDue())

	clk.Advance(time.Second)
	assert.True(t, m.RotationDue())

	_, err := m.Rotate(ctx)
	require.NoError(t, err)
	assert.False(t, m.RotationDue())
}

func TestReconcilePurgesKeysPastRetention(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	cfg := KeyManagerConfig{
		GracePeriod: time.Hour,
		MaxTokenTTL: 2 * time.Hour,
	}
	m, store := newTestManager(t, clk, cfg)
	require.NoError(t, m.Initialize(ctx))
	oldKID, _, err := m.CurrentSigningKey()
	require.NoError(t, err)

	_, err = m.Rotate(ctx)
	require.NoError(t, err)

	// Past deactivation + max token TTL: no live token can reference it.
	clk.Advance(cfg.MaxTokenTTL + cfg.GracePeriod + time.Second)
	require.NoError(t, m.Reconcile(ctx))

	_, err = m.VerificationKey(oldKID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownKey))

	persisted, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.NotEqual(t, oldKID, persisted[0].KID)
}

// TestReconcileRetainsKeyWhileSignedTokensLive pins key retention to the last
// moment the key could have signed, not to its creation. A key rotated out
// after a month may have signed a maximum-lifetime refresh token on its final
// day, and that token must keep verifying until it expires.
func TestReconcileRetainsKeyWhileSignedTokensLive(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	day := 24 * time.Hour
	cfg := KeyManagerConfig{
		RotationInterval: 30 * day,
		GracePeriod:      day,
		MaxTokenTTL:      90 * day,
	}
	m, _ := newTestManager(t, clk, cfg)
	require.NoError(t, m.Initialize(ctx))
	oldKID, _, err := m.CurrentSigningKey()
	require.NoError(t, err)

	codec := NewJWTManager(m, JWTManagerConfig{
		Issuer:   testIssuer,
		Audience: testAudience,
	}, clk, logger.NewNoop())

	// The key signs a maximum-lifetime refresh token on its last day, then
	// rotates out.
	clk.Advance(30 * day)
	signed, kid, err := codec.SignClaims(ctx, testClaims(clk.Now(), "creator-42", cfg.MaxTokenTTL, constants.TokenTypeRefresh))
	require.NoError(t, err)
	require.Equal(t, oldKID, kid)
	_, err = m.Rotate(ctx)
	require.NoError(t, err)

	// Day 92: well past creation + max TTL + grace, but the refresh token
	// lives until day 120. The key must still verify it.
	clk.Advance(62 * day)
	require.NoError(t, m.Reconcile(ctx))
	got, err := codec.ParseAndVerify(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "creator-42", got.Subject)

	// Past deactivation + max TTL nothing the key signed can still be live,
	// so it finally purges.
	clk.Advance(30 * day)
	require.NoError(t, m.Reconcile(ctx))
	_, err = m.VerificationKey(oldKID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnknownKey), "got %v", err)
}

func TestConcurrentRotateKeepsOneCurrentKey(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	m, _ := newTestManager(t, clk, KeyManagerConfig{})
	require.NoError(t, m.Initialize(ctx))

	const rotations = 8
	var wg sync.WaitGroup
	for i := 0; i < rotations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Rotate(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	kid, _, err := m.CurrentSigningKey()
	require.NoError(t, err)

	keys := m.Keys()
	assert.Len(t, keys, rotations+1)
	seen := make(map[string]bool, len(keys))
	var activeCurrent int
	for _, k := range keys {
		assert.False(t, seen[k.KID], "duplicate key entry %s", k.KID)
		seen[k.KID] = true
		if k.KID == kid {
			assert.True(t, k.Active)
			activeCurrent++
		}
	}
	assert.Equal(t, 1, activeCurrent)
}

// flakyKeyStore wraps a real store and fails Save on demand.
type flakyKeyStore struct {
	KeyStore
	failSave bool
}

func (f *flakyKeyStore) Save(ctx context.Context, key *models.SigningKey) error {
	if f.failSave {
		return apperrors.ErrKeyStoreUnavailable(stderrors.New("disk full"))
	}
	return f.KeyStore.Save(ctx, key)
}
