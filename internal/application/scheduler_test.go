package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/internal/infrastructure/crypto"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	"github.com/veridia/tokencore/pkg/logger"
	"github.com/veridia/tokencore/tests/fakes"
)

type schedulerHarness struct {
	clk     *clock.Fake
	keys    *crypto.KeyManager
	revRepo *fakes.MemoryRevocationRepository
	tokens  *fakes.MemoryTokenRepository
	sched   *Scheduler
}

func newSchedulerHarness(t *testing.T) *schedulerHarness {
	t.Helper()
	ctx := context.Background()
	noop := logger.NewNoop()
	h := &schedulerHarness{
		clk:     clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		revRepo: fakes.NewMemoryRevocationRepository(),
		tokens:  fakes.NewMemoryTokenRepository(),
	}

	store, err := crypto.NewFileKeyStore(t.TempDir(), noop)
	require.NoError(t, err)
	h.keys = crypto.NewKeyManager(store, crypto.KeyManagerConfig{}, h.clk, noop, nil)
	t.Cleanup(h.keys.Shutdown)
	require.NoError(t, h.keys.Initialize(ctx))

	ledger := service.NewHybridRevocationLedger(h.revRepo, nil, nil,
		service.HybridLedgerConfig{}, h.clk, noop)
	h.sched = NewScheduler(h.keys, ledger, h.tokens, nil, SchedulerConfig{}, h.clk, noop)
	return h
}

func TestRotationPassRotatesWhenDue(t *testing.T) {
	ctx := context.Background()
	h := newSchedulerHarness(t)
	initialKID := h.keys.CurrentKID()

	// Young key: nothing to do.
	require.NoError(t, h.sched.RotationPass(ctx))
	assert.Equal(t, initialKID, h.keys.CurrentKID())

	// Past the rotation interval the pass rotates exactly once.
	h.clk.Advance(constants.DefaultRotationInterval + time.Minute)
	require.NoError(t, h.sched.RotationPass(ctx))
	rotatedKID := h.keys.CurrentKID()
	assert.NotEqual(t, initialKID, rotatedKID)

	require.NoError(t, h.sched.RotationPass(ctx))
	assert.Equal(t, rotatedKID, h.keys.CurrentKID())
}

func TestRotationPassReconcilesGraceDeadline(t *testing.T) {
	ctx := context.Background()
	h := newSchedulerHarness(t)
	initialKID := h.keys.CurrentKID()

	h.clk.Advance(constants.DefaultRotationInterval + time.Minute)
	require.NoError(t, h.sched.RotationPass(ctx))

	// Within the grace period the superseded key is still active.
	keyActive := func(kid string) bool {
		for _, k := range h.keys.Keys() {
			if k.KID == kid {
				return k.Active
			}
		}
		return false
	}
	assert.True(t, keyActive(initialKID))

	h.clk.Advance(constants.DefaultGracePeriod + time.Minute)
	require.NoError(t, h.sched.RotationPass(ctx))
	assert.False(t, keyActive(initialKID))
}

func TestCleanupPassPurgesExpiredState(t *testing.T) {
	ctx := context.Background()
	h := newSchedulerHarness(t)
	now := h.clk.Now()

	require.NoError(t, h.revRepo.Insert(ctx, &models.RevocationEntry{
		JTI: "jti-old", Subject: "creator-42", ExpiresAt: now.Add(time.Minute), RevokedAt: now,
	}))
	require.NoError(t, h.revRepo.Insert(ctx, &models.RevocationEntry{
		JTI: "jti-live", Subject: "creator-42", ExpiresAt: now.Add(time.Hour), RevokedAt: now,
	}))
	require.NoError(t, h.tokens.Save(ctx, &models.TokenRecord{
		JTI: "rec-old", Subject: "creator-42", TokenType: constants.TokenTypeRefresh,
		IssuedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	h.clk.Advance(10 * time.Minute)
	require.NoError(t, h.sched.CleanupPass(ctx))

	assert.Equal(t, 1, h.revRepo.Len())
	_, err := h.tokens.FindByJTI(ctx, "rec-old")
	require.Error(t, err)
}
