package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/veridia/tokencore/internal/domain/models"
	"github.com/veridia/tokencore/pkg/clock"
)

// MemoryRevocationCache is an in-memory service.RevocationCache driven by an
// injected clock so TTL expiry is deterministic in tests.
type MemoryRevocationCache struct {
	mu        sync.RWMutex
	deadlines map[string]time.Time
	clk       clock.Clock

	// Err, when set, fails every call with the given error.
	Err error
	// Seeds counts successful Seed calls.
	Seeds int
}

// NewMemoryRevocationCache creates an empty cache on the given clock.
func NewMemoryRevocationCache(clk clock.Clock) *MemoryRevocationCache {
	return &MemoryRevocationCache{deadlines: make(map[string]time.Time), clk: clk}
}

// Seed records the JTI until its TTL elapses.
func (c *MemoryRevocationCache) Seed(ctx context.Context, jti string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.deadlines[jti] = c.clk.Now().Add(ttl)
	c.Seeds++
	return nil
}

// Lookup reports whether the JTI is present and unexpired.
func (c *MemoryRevocationCache) Lookup(ctx context.Context, jti string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Err != nil {
		return false, c.Err
	}
	deadline, ok := c.deadlines[jti]
	return ok && c.clk.Now().Before(deadline), nil
}

// Drop removes a JTI, simulating cache eviction.
func (c *MemoryRevocationCache) Drop(jti string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deadlines, jti)
}

// CapturePublisher is an in-memory service.RevocationPublisher that records
// every published entry.
type CapturePublisher struct {
	mu      sync.Mutex
	entries []models.RevocationEntry

	// Err, when set, fails every publish with the given error.
	Err error
}

// PublishRevocation records the entry.
func (p *CapturePublisher) PublishRevocation(ctx context.Context, entry *models.RevocationEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.entries = append(p.entries, *entry)
	return nil
}

// Published returns a copy of everything published so far.
func (p *CapturePublisher) Published() []models.RevocationEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RevocationEntry, len(p.entries))
	copy(out, p.entries)
	return out
}
