package crypto

import (
	"context"
	"crypto/rsa"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/constants"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// KeyManagerConfig tunes the key lifecycle.
type KeyManagerConfig struct {
	// RotationInterval is the current key's maximum age before RotationDue
	// reports true.
	RotationInterval time.Duration

	// GracePeriod is how long a superseded key keeps signing eligibility
	// after rotation before it is marked inactive.
	GracePeriod time.Duration

	// MaxTokenTTL bounds how long any issued token can outlive its signing
	// key; retention purging is derived from it.
	MaxTokenTTL time.Duration
}

func (c *KeyManagerConfig) applyDefaults() {
	if c.RotationInterval <= 0 {
		c.RotationInterval = constants.DefaultRotationInterval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = constants.DefaultGracePeriod
	}
	if c.MaxTokenTTL <= 0 {
		c.MaxTokenTTL = constants.MaxTokenTTL
	}
}

// keySnapshot is the immutable view handed to readers. Every mutation builds
// a fresh snapshot and swaps the pointer, so signing and verification never
// take a lock.
type keySnapshot struct {
	currentKID string
	keys       map[string]*models.SigningKey
}

// KeyManager owns the signing key lifecycle: initialization, the current-key
// invariant, rotation with a grace period, deferred deactivation, and
// retention purging. All state transitions go through a single mutex; reads
// go through an atomic snapshot.
type KeyManager struct {
	store KeyStore
	cfg   KeyManagerConfig
	clk   clock.Clock
	log   logger.Logger
	audit *logger.AuditLogger

	snap atomic.Pointer[keySnapshot]

	mu         sync.Mutex
	graceTimer *time.Timer
	// dirty holds KIDs whose deactivation or deadline was applied in memory
	// but not yet persisted; Reconcile retries them.
	dirty  map[string]*models.SigningKey
	closed bool
}

// NewKeyManager wires a manager; call Initialize before first use.
func NewKeyManager(store KeyStore, cfg KeyManagerConfig, clk clock.Clock, log logger.Logger, audit *logger.AuditLogger) *KeyManager {
	cfg.applyDefaults()
	return &KeyManager{
		store: store,
		cfg:   cfg,
		clk:   clk,
		log:   log.WithComponent("key_manager"),
		audit: audit,
		dirty: make(map[string]*models.SigningKey),
	}
}

// Initialize loads all persisted keys and establishes the current-key
// invariant: if no active key exists (first boot included), a fresh key is
// generated and durably saved before the manager reports ready. A store
// failure here is fatal; the service must not start without signing
// capability.
func (m *KeyManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	loaded, err := m.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	keys := make(map[string]*models.SigningKey, len(loaded)+1)
	for _, k := range loaded {
		keys[k.KID] = k
	}

	now := m.clk.Now()
	// Deactivation deadlines that passed while the process was down are
	// applied before the first token is signed.
	for kid, k := range keys {
		if k.Active && !k.DeactivateAt.IsZero() && !now.Before(k.DeactivateAt) {
			c := *k
			c.Active = false
			keys[kid] = &c
			if err := m.store.MarkInactive(ctx, kid); err != nil {
				m.log.Warn(ctx, "deferred deactivation not persisted, will retry",
					logger.String("kid", kid), logger.Err(err))
				m.dirty[kid] = &c
			}
		}
	}

	current := newestActive(keys)
	if current == "" {
		fresh, err := NewSigningKey(now)
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, fresh); err != nil {
			return err
		}
		keys[fresh.KID] = fresh
		current = fresh.KID
		m.log.Info(ctx, "no active signing key found, generated initial key",
			logger.String("kid", fresh.KID))
	}

	m.snap.Store(&keySnapshot{currentKID: current, keys: keys})
	m.log.Info(ctx, "key manager initialized",
		logger.String("current_kid", current), logger.Int("key_count", len(keys)))
	m.scheduleReconcileLocked()
	return nil
}

// CurrentSigningKey returns the identifier and private key that must sign
// the next token.
func (m *KeyManager) CurrentSigningKey() (string, *rsa.PrivateKey, error) {
	snap := m.snap.Load()
	if snap == nil {
		return "", nil, apperrors.New(apperrors.KindUnknown, "key manager not initialized")
	}
	key, ok := snap.keys[snap.currentKID]
	if !ok || !key.Active {
		return "", nil, apperrors.New(apperrors.KindUnknown, "current signing key %q unusable", snap.currentKID)
	}
	return key.KID, key.Private(), nil
}

// VerificationKey resolves a key identifier to its public key. Inactive keys
// still resolve; only purged or never-known identifiers fail.
func (m *KeyManager) VerificationKey(kid string) (*rsa.PublicKey, error) {
	snap := m.snap.Load()
	if snap == nil {
		return nil, apperrors.ErrUnknownKey(kid)
	}
	key, ok := snap.keys[kid]
	if !ok {
		return nil, apperrors.ErrUnknownKey(kid)
	}
	return key.Public(), nil
}

// Rotate generates a new key, durably saves it, promotes it to current, and
// schedules the superseded key for deactivation after the grace period. The
// superseded key keeps verifying until retention expires. If the save fails
// the previous key stays current and the error is returned.
func (m *KeyManager) Rotate(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", apperrors.New(apperrors.KindUnknown, "key manager is shut down")
	}

	now := m.clk.Now()
	fresh, err := NewSigningKey(now)
	if err != nil {
		return "", err
	}
	if err := m.store.Save(ctx, fresh); err != nil {
		return "", err
	}

	snap := m.snap.Load()
	keys := cloneKeys(snap)
	var oldKID string
	if prev, ok := lookupCurrent(snap); ok {
		old := *prev
		old.DeactivateAt = now.Add(m.cfg.GracePeriod)
		keys[old.KID] = &old
		oldKID = old.KID
		if err := m.store.Save(ctx, &old); err != nil {
			m.log.Warn(ctx, "grace deadline not persisted, will retry",
				logger.String("kid", old.KID), logger.Err(err))
			m.dirty[old.KID] = &old
		}
	}
	keys[fresh.KID] = fresh
	m.snap.Store(&keySnapshot{currentKID: fresh.KID, keys: keys})

	m.log.Info(ctx, "signing key rotated",
		logger.String("old_kid", oldKID), logger.String("new_kid", fresh.KID),
		logger.Time("deactivate_at", now.Add(m.cfg.GracePeriod)))
	if m.audit != nil {
		m.audit.KeyRotated(ctx, oldKID, fresh.KID)
	}
	m.scheduleReconcileLocked()
	return fresh.KID, nil
}

// RotationDue reports whether the current key's age has reached the rotation
// interval.
func (m *KeyManager) RotationDue() bool {
	snap := m.snap.Load()
	if snap == nil {
		return false
	}
	key, ok := snap.keys[snap.currentKID]
	if !ok {
		return false
	}
	return key.Age(m.clk.Now()) >= m.cfg.RotationInterval
}

// Reconcile applies every due state transition: grace deadlines that have
// passed flip keys inactive, unpersisted transitions are retried, and keys
// past retention are purged. The scheduler calls it periodically and a timer
// fires it at the next grace deadline.
func (m *KeyManager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snap.Load()
	if snap == nil {
		return nil
	}
	now := m.clk.Now()
	keys := cloneKeys(snap)
	changed := false

	for kid, k := range keys {
		if k.Active && !k.DeactivateAt.IsZero() && !now.Before(k.DeactivateAt) {
			c := *k
			c.Active = false
			keys[kid] = &c
			changed = true
			m.log.Info(ctx, "signing key deactivated after grace period",
				logger.String("kid", kid))
			if m.audit != nil {
				m.audit.Event(ctx, constants.AuditEventKeyDeactivated, logger.String("kid", kid))
			}
			if err := m.store.MarkInactive(ctx, kid); err != nil {
				m.log.Warn(ctx, "deactivation not persisted, will retry",
					logger.String("kid", kid), logger.Err(err))
				m.dirty[kid] = &c
			} else {
				delete(m.dirty, kid)
			}
		}
	}

	for kid, pending := range m.dirty {
		if _, ok := keys[kid]; !ok {
			delete(m.dirty, kid)
			continue
		}
		var err error
		if pending.Active {
			// An unpersisted grace deadline is retried as a full metadata save.
			err = m.store.Save(ctx, pending)
		} else {
			err = m.store.MarkInactive(ctx, kid)
		}
		if err == nil {
			delete(m.dirty, kid)
		}
	}

	for kid, k := range keys {
		if kid == snap.currentKID {
			continue
		}
		if k.PurgeEligible(now, m.cfg.MaxTokenTTL, m.cfg.GracePeriod) {
			delete(keys, kid)
			delete(m.dirty, kid)
			changed = true
			m.log.Info(ctx, "signing key past retention, purging", logger.String("kid", kid))
			if deleter, ok := m.store.(interface {
				Delete(context.Context, string) error
			}); ok {
				if err := deleter.Delete(ctx, kid); err != nil {
					m.log.Warn(ctx, "key purge not persisted", logger.String("kid", kid), logger.Err(err))
				}
			}
		}
	}

	if changed {
		m.snap.Store(&keySnapshot{currentKID: snap.currentKID, keys: keys})
	}
	m.scheduleReconcileLocked()
	return nil
}

// Reload re-reads the store and rebuilds the snapshot. The file backend's
// directory watch calls it when a sibling replica rotates.
func (m *KeyManager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	loaded, err := m.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	keys := make(map[string]*models.SigningKey, len(loaded))
	for _, k := range loaded {
		keys[k.KID] = k
	}

	current := newestActive(keys)
	if current == "" {
		// A sibling must never delete the last active key; keep the current
		// snapshot rather than losing signing capability.
		return apperrors.New(apperrors.KindKeyStoreUnavailable, "reload found no active signing key")
	}
	m.snap.Store(&keySnapshot{currentKID: current, keys: keys})
	m.log.Info(ctx, "signing keys reloaded",
		logger.String("current_kid", current), logger.Int("key_count", len(keys)))
	m.scheduleReconcileLocked()
	return nil
}

// Keys returns metadata copies of every held key, newest first, with private
// material stripped. Serves the admin listing and the JWKS document.
func (m *KeyManager) Keys() []*models.SigningKey {
	snap := m.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*models.SigningKey, 0, len(snap.keys))
	for _, k := range snap.keys {
		c := *k
		c.PrivatePEM = nil
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CurrentKID returns the identifier of the current signing key.
func (m *KeyManager) CurrentKID() string {
	snap := m.snap.Load()
	if snap == nil {
		return ""
	}
	return snap.currentKID
}

// Shutdown stops the grace timer. Held keys remain readable.
func (m *KeyManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

// scheduleReconcileLocked arms a timer for the earliest pending grace
// deadline. The timer is a production convenience; correctness comes from
// Reconcile reading the injected clock.
func (m *KeyManager) scheduleReconcileLocked() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.closed {
		return
	}
	snap := m.snap.Load()
	if snap == nil {
		return
	}

	var next time.Time
	for _, k := range snap.keys {
		if k.Active && !k.DeactivateAt.IsZero() {
			if next.IsZero() || k.DeactivateAt.Before(next) {
				next = k.DeactivateAt
			}
		}
	}
	if next.IsZero() {
		return
	}

	delay := next.Sub(m.clk.Now())
	if delay < 0 {
		delay = 0
	}
	m.graceTimer = time.AfterFunc(delay, func() {
		if err := m.Reconcile(context.Background()); err != nil {
			m.log.Warn(context.Background(), "scheduled reconcile failed", logger.Err(err))
		}
	})
}

func lookupCurrent(snap *keySnapshot) (*models.SigningKey, bool) {
	if snap == nil || snap.currentKID == "" {
		return nil, false
	}
	k, ok := snap.keys[snap.currentKID]
	return k, ok
}

func newestActive(keys map[string]*models.SigningKey) string {
	var kid string
	var created time.Time
	for _, k := range keys {
		if k.Active && (kid == "" || k.CreatedAt.After(created)) {
			kid = k.KID
			created = k.CreatedAt
		}
	}
	return kid
}

func cloneKeys(snap *keySnapshot) map[string]*models.SigningKey {
	if snap == nil {
		return make(map[string]*models.SigningKey)
	}
	out := make(map[string]*models.SigningKey, len(snap.keys)+1)
	for kid, k := range snap.keys {
		out[kid] = k
	}
	return out
}
