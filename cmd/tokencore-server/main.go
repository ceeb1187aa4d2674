// Command tokencore-server runs the token trust core service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridia/tokencore/internal/application"
	"github.com/veridia/tokencore/internal/config"
	"github.com/veridia/tokencore/internal/domain/service"
	"github.com/veridia/tokencore/internal/infrastructure/crypto"
	"github.com/veridia/tokencore/internal/infrastructure/events"
	"github.com/veridia/tokencore/internal/infrastructure/monitoring"
	"github.com/veridia/tokencore/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/veridia/tokencore/internal/infrastructure/persistence/redis"
	httpiface "github.com/veridia/tokencore/internal/interfaces/http"
	"github.com/veridia/tokencore/internal/interfaces/http/handlers"
	"github.com/veridia/tokencore/pkg/clock"
	"github.com/veridia/tokencore/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog, err := monitoring.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}

	if err := run(cfg, appLog); err != nil {
		appLog.Fatal(context.Background(), "server exited", err)
	}
}

func run(cfg *config.Config, appLog logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System{}
	audit := logger.NewAuditLogger(appLog)
	metrics := monitoring.NewMetrics()

	tracing, err := monitoring.NewTracingManager(cfg.Tracing, appLog)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			appLog.Warn(context.Background(), "tracing shutdown failed", logger.Err(err))
		}
	}()

	// Signing keys.
	keyStore, fileStore, err := buildKeyStore(cfg.Keys, appLog)
	if err != nil {
		return err
	}
	keys := crypto.NewKeyManager(keyStore, crypto.KeyManagerConfig{
		RotationInterval: cfg.Keys.RotationInterval,
		GracePeriod:      cfg.Keys.GracePeriod,
	}, clk, appLog, audit)
	defer keys.Shutdown()
	if err := keys.Initialize(ctx); err != nil {
		return err
	}
	if cfg.Keys.WatchDir && fileStore != nil {
		if err := fileStore.Watch(ctx, func() {
			if err := keys.Reload(context.Background()); err != nil {
				appLog.Warn(context.Background(), "key reload failed", logger.Err(err))
			}
		}); err != nil {
			return err
		}
	}

	codec := crypto.NewJWTManager(keys, crypto.JWTManagerConfig{
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		Leeway:   cfg.Token.ClockSkewLeeway,
	}, clk, appLog)

	// Durable storage.
	pool, err := postgres.NewPool(ctx, cfg.Database, appLog)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	revocationRepo := postgres.NewRevocationRepo(pool, appLog)
	tokenRepo := postgres.NewTokenRepo(pool, appLog)

	// Shared cache.
	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, appLog)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	revocationCache := redisinfra.NewRevocationCache(redisClient, appLog)

	// Cross-replica fan-out.
	var publisher service.RevocationPublisher
	var kafkaPublisher *events.KafkaRevocationPublisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher = events.NewKafkaRevocationPublisher(cfg.Kafka, appLog)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	ledger := service.NewHybridRevocationLedger(revocationRepo, revocationCache, publisher,
		service.HybridLedgerConfig{
			FailOpen:      cfg.Revocation.FailOpen,
			LookupTimeout: cfg.Revocation.LookupTimeout,
		}, clk, appLog)

	tokens := service.NewTokenService(codec, ledger, tokenRepo, service.TokenServiceConfig{
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	}, clk, appLog, audit)

	scheduler := application.NewScheduler(keys, ledger, tokenRepo, metrics, application.SchedulerConfig{
		CleanupInterval: cfg.Revocation.CleanupInterval,
	}, clk, appLog)

	router := httpiface.NewRouter(cfg.Server, httpiface.RouterDeps{
		Tokens: handlers.NewTokenHandler(tokens, metrics, clk, appLog),
		Keys:   handlers.NewKeysHandler(keys, metrics, appLog),
		Health: handlers.NewHealthHandler(
			handlers.HealthChecker{Name: "postgres", Check: pool.Ping},
			handlers.HealthChecker{Name: "redis", Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}},
		),
		Maintenance: handlers.NewMaintenanceHandler(scheduler, appLog),
		Log:         appLog,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info(ctx, "http server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if cfg.Kafka.Enabled() {
		consumer := events.NewRevocationConsumer(cfg.Kafka, ledger, appLog)
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildKeyStore selects the configured key backend. The second return value
// is non-nil only for the file backend, which supports directory watching.
func buildKeyStore(cfg config.KeysConfig, appLog logger.Logger) (crypto.KeyStore, *crypto.FileKeyStore, error) {
	switch cfg.Backend {
	case "vault":
		store, err := crypto.NewVaultKeyStore(cfg.Vault, appLog)
		return store, nil, err
	default:
		store, err := crypto.NewFileKeyStore(cfg.Dir, appLog)
		return store, store, err
	}
}
