// Package application hosts the background jobs that keep the token trust
// core healthy: automatic key rotation, key state reconciliation, and ledger
// cleanup.
package application

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridia/tokencore/internal/domain/repository"
	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/internal/infrastructure/crypto"
	"github.com/veridia/tokencore/internal/infrastructure/monitoring"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/logger"
)

// SchedulerConfig tunes the job cadence.
type SchedulerConfig struct {
	// RotationCheckInterval is how often the current key's age is checked
	// against the rotation interval.
	RotationCheckInterval time.Duration

	// CleanupInterval is how often expired ledger entries and token records
	// are purged.
	CleanupInterval time.Duration
}

func (c *SchedulerConfig) applyDefaults() {
	if c.RotationCheckInterval <= 0 {
		c.RotationCheckInterval = time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
}

// Scheduler drives the periodic maintenance passes. Each pass is also
// callable directly, which is how tests drive it against a fake clock.
type Scheduler struct {
	keys    *crypto.KeyManager
	ledger  service.RevocationLedger
	tokens  repository.TokenRepository
	metrics *monitoring.Metrics
	cfg     SchedulerConfig
	clk     clock.Clock
	log     logger.Logger
}

// NewScheduler wires the maintenance jobs. metrics may be nil.
func NewScheduler(
	keys *crypto.KeyManager,
	ledger service.RevocationLedger,
	tokens repository.TokenRepository,
	metrics *monitoring.Metrics,
	cfg SchedulerConfig,
	clk clock.Clock,
	log logger.Logger,
) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		keys:    keys,
		ledger:  ledger,
		tokens:  tokens,
		metrics: metrics,
		cfg:     cfg,
		clk:     clk,
		log:     log.WithComponent("scheduler"),
	}
}

// Run blocks until the context is cancelled, running both loops.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, s.cfg.RotationCheckInterval, s.RotationPass) })
	g.Go(func() error { return s.loop(ctx, s.cfg.CleanupInterval, s.CleanupPass) })
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, pass func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := pass(ctx); err != nil {
				s.log.Error(ctx, "maintenance pass failed", err)
			}
		}
	}
}

// RotationPass rotates the signing key when its age crosses the rotation
// interval, then reconciles pending deactivations and retention purges.
func (s *Scheduler) RotationPass(ctx context.Context) error {
	if s.keys.RotationDue() {
		kid, err := s.keys.Rotate(ctx)
		if err != nil {
			return err
		}
		s.log.Info(ctx, "scheduled key rotation performed", logger.String("new_kid", kid))
		if s.metrics != nil {
			s.metrics.KeyRotations.Inc()
		}
	}
	return s.keys.Reconcile(ctx)
}

// CleanupPass purges expired revocation entries and token records. Both sets
// are unreachable by normal checks once expired, so failures only delay
// space reclamation.
func (s *Scheduler) CleanupPass(ctx context.Context) error {
	purged, err := s.ledger.Cleanup(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordCleanup(purged)
	}

	records, err := s.tokens.DeleteExpired(ctx, s.clk.Now())
	if err != nil {
		return err
	}
	if records > 0 {
		s.log.Info(ctx, "expired token records purged", logger.Int64("count", records))
	}
	return nil
}
