// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creator-paywall/internal/config"
	"creator-paywall/internal/domain/money"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/domain/ports/repository"
	payAdapters "creator-paywall/internal/infra/adapters/payment"
	"creator-paywall/internal/infra/api"
	boltdb "creator-paywall/internal/infra/db/bolt"
	pg "creator-paywall/internal/infra/db/postgres"
	"creator-paywall/internal/infra/events"
	"creator-paywall/internal/infra/logging"
	"creator-paywall/internal/infra/metrics"
	red "creator-paywall/internal/infra/redis"
	"creator-paywall/internal/infra/sched"
	"creator-paywall/internal/infra/security"
	"creator-paywall/internal/infra/worker"
	"creator-paywall/internal/usecase"

	"github.com/rs/zerolog"
)

var version = "dev"

// intentRetention bounds how long an unconfirmed intent stays tracked.
const intentRetention = 48 * time.Hour

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, throwaway keys)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, cfg.Store.Driver)

	// ---- Ledger store ----
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("open ledger store")
	}
	defer st.close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	intents := red.NewIntentLog(redisClient, intentRetention, logger)
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	catalog := pg.NewContentCacheDecorator(st.catalog, redisClient, cfg.Redis.TTL, logger)

	// ---- Encryption ----
	sealer, err := security.NewDestinationSealer(cfg.Security.EncryptionKey)
	if err != nil {
		if !cfg.Runtime.Dev {
			logger.Fatal().Err(err).Msg("encryption")
		}
		key, kerr := security.RandomKey()
		if kerr != nil {
			logger.Fatal().Err(kerr).Msg("encryption: random key")
		}
		logger.Warn().Err(err).Msg("security.encryption_key unusable; using a throwaway key (INSECURE)")
		if sealer, err = security.NewDestinationSealer(key); err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
	}

	// ---- Payment gateway ----
	var (
		gateway adapter.PaymentGateway
		sandbox *payAdapters.SandboxGateway
	)
	if cfg.Stripe.Sandbox {
		sandbox = payAdapters.NewSandboxGateway(cfg.Stripe.WebhookSecret, cfg.Stripe.Currency)
		gateway = sandbox
		logger.Warn().Msg("payment gateway: sandbox (no real money moves)")
	} else {
		gateway, err = payAdapters.NewStripeGateway(cfg.Stripe, nil, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("stripe gateway")
		}
	}

	// ---- Ledger events ----
	var sink adapter.EventPublisher = events.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka publisher")
		}
		defer kp.Close()
		sink = kp
	}
	pool := worker.NewPool(cfg.Kafka.Workers, cfg.Kafka.Queue, logger)
	pool.Start(ctx)
	defer pool.Stop()
	publisher := events.NewAsyncPublisher(sink, pool, 5*time.Second, logger)

	// ---- Use cases ----
	policy := money.Policy{FeeBasisPoints: cfg.Fees.PlatformFeeBps, MaxPrice: cfg.Fees.MaxPriceCents}
	if err := policy.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("fee policy")
	}
	purchaseUC := usecase.NewPurchaseUseCase(st.ledger, catalog, gateway, intents, publisher, policy, cfg.Gateway.Timeout, logger)
	withdrawalUC := usecase.NewWithdrawalUseCase(st.ledger, gateway, locker, sealer, publisher, cfg.Fees.MinWithdrawalCents, cfg.Gateway.Timeout, logger)
	webhookUC := usecase.NewWebhookUseCase(gateway, purchaseUC, withdrawalUC, intents, logger)
	historyUC := usecase.NewHistoryUseCase(st.ledger, sealer, logger)

	// ---- Reconciler ----
	reconciler := sched.NewIntentReconciler(purchaseUC, intents, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.Batch, logger)
	go func() {
		if err := reconciler.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("intent reconciler stopped")
		}
	}()

	// ---- HTTP ----
	deps := api.Deps{
		Purchases:   purchaseUC,
		Withdrawals: withdrawalUC,
		Webhooks:    webhookUC,
		History:     historyUC,
		Tokens:      api.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Limiter:     rateLimiter,
		Ready: func(ctx context.Context) error {
			if err := st.ping(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		},
	}
	if sandbox != nil {
		deps.Sandbox = sandbox
	}
	server := api.NewServer(deps, cfg.Server, cfg.RateLimit, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}

type store struct {
	ledger  repository.LedgerStore
	catalog pg.CatalogStore
	ping    func(ctx context.Context) error
	close   func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case "bolt":
		s, err := boltdb.Open(cfg.Store.BoltPath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Store.BoltPath).Msg("ledger store: bolt")
		return &store{
			ledger:  s,
			catalog: s,
			ping:    func(context.Context) error { return nil },
			close:   func() { _ = s.Close() },
		}, nil
	default:
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := pg.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)
		ledger := pg.NewLedger(pool, logger)
		logger.Info().Msg("ledger store: postgres")
		return &store{
			ledger:  ledger,
			catalog: ledger,
			ping:    pool.Ping,
			close:   pool.Close,
		}, nil
	}
}
