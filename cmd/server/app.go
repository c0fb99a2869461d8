package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/clinicalledger/internal/adapter/archive"
	"github.com/iho/clinicalledger/internal/adapter/export"
	httpAdapter "github.com/iho/clinicalledger/internal/adapter/http"
	"github.com/iho/clinicalledger/internal/adapter/http/handler"
	"github.com/iho/clinicalledger/internal/adapter/http/middleware"
	"github.com/iho/clinicalledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/clinicalledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/clinicalledger/internal/adapter/repository/redis"
	"github.com/iho/clinicalledger/internal/infrastructure/auth"
	"github.com/iho/clinicalledger/internal/infrastructure/config"
	"github.com/iho/clinicalledger/internal/infrastructure/metrics"
	"github.com/iho/clinicalledger/internal/infrastructure/postgres"
	"github.com/iho/clinicalledger/internal/infrastructure/redis"
	"github.com/iho/clinicalledger/internal/usecase"
)

// storage is the set of repositories behind one backend.
type storage struct {
	txManager usecase.TransactionManager
	entries   usecase.EntryRepository
	ledgers   usecase.LedgerRepository
	audit     usecase.AuditRepository
	retrier   usecase.Retrier
}

// app is the wired service.
type app struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	closers     []func()
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires every component selected by cfg. reg receives the service
// metrics and is served on /metrics.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	catalog, err := cfg.LoadTherapyCatalog()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	idGen := postgresRepo.NewULIDGenerator()
	checks := map[string]handler.Pinger{}

	// Storage
	var store storage
	switch cfg.StorageBackend {
	case config.BackendMemory:
		s := memory.NewStore()
		store = storage{
			txManager: memory.NewTxManager(s),
			entries:   memory.NewEntryRepository(s),
			ledgers:   memory.NewLedgerRepository(s),
			audit:     memory.NewAuditRepository(s),
		}
		log.Warn().Msg("using in-memory storage; records are lost on restart")
	case config.BackendPostgres:
		if cfg.AutoMigrate {
			if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
				return nil, err
			}
		}

		connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseTimeout)
		pool, err := postgres.NewPoolWithConfig(connectCtx, postgres.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MinConns:    cfg.DatabaseMinConns,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		checks["postgres"] = pool
		log.Info().Msg("connected to postgres")

		store = storage{
			txManager: postgresRepo.NewTxManager(pool),
			entries:   postgresRepo.NewEntryRepository(pool),
			ledgers:   postgresRepo.NewLedgerRepository(pool),
			audit:     postgresRepo.NewAuditRepository(pool),
			retrier:   postgresRepo.NewRetrier(log, m),
		}
	}

	// Redis
	var redisClient *goredis.Client
	if cfg.RedisRequired() {
		redisClient, err = redis.NewClient(ctx, redis.ClientConfig{
			URL:         cfg.RedisURL,
			PoolSize:    cfg.RedisPoolSize,
			PingTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		client := redisClient
		a.closers = append(a.closers, func() { client.Close() })
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		log.Info().Msg("connected to redis")
	}

	var locker usecase.EntryLocker = memory.NewLocker()
	if cfg.LockBackend == config.BackendRedis {
		locker = redisRepo.NewLocker(redisClient, cfg.LockTTL, m, log)
	}

	var idempotencyStore usecase.IdempotencyStore
	if cfg.IdempotencyEnabled {
		idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
	}

	// Export archive
	var archiver usecase.ExportArchiver
	if cfg.ArchiveEnabled() {
		s3Archiver, err := archive.NewS3Archiver(archive.Config{
			Bucket:          cfg.ArchiveBucket,
			Region:          cfg.ArchiveRegion,
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
			UsePathStyle:    cfg.ArchiveUsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("configure export archive: %w", err)
		}
		archiver = s3Archiver
	}

	// Use cases
	opts := []usecase.AmendmentOption{usecase.WithMetrics(m), usecase.WithLogger(log)}
	if store.retrier != nil {
		opts = append(opts, usecase.WithRetrier(store.retrier))
	}
	amendmentUC := usecase.NewAmendmentUseCase(
		store.txManager, store.entries, store.ledgers, store.audit,
		idGen, locker, catalog,
		usecase.AmendmentPolicy{MinReasonLength: cfg.MinReasonLength, Location: loc},
		opts...,
	)
	ledgerUC := usecase.NewLedgerUseCase(store.entries, store.ledgers, catalog)
	historyUC := usecase.NewHistoryUseCase(store.entries, store.audit, m, log)
	encoders := export.Encoders(export.PrintOptions{PageLines: cfg.PrintPageLines, Columns: cfg.PrintColumns})
	exportUC := usecase.NewExportUseCase(ledgerUC, store.audit, catalog, encoders, archiver, idGen, usecase.SystemClock{}, m, log)

	// HTTP
	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled {
		verifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}
	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	}

	a.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		EntryHandler:     handler.NewEntryHandler(amendmentUC, ledgerUC),
		HistoryHandler:   handler.NewHistoryHandler(historyUC),
		ExportHandler:    handler.NewExportHandler(exportUC),
		HealthHandler:    handler.NewHealthHandler(checks),
		Logger:           log,
		Metrics:          m,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ActorMiddleware:  middleware.NewActorMiddleware(verifier, m),
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      a.rateLimiter,
	})

	log.Info().
		Str("storage", cfg.StorageBackend).
		Str("locks", cfg.LockBackend).
		Int("therapy_methods", len(catalog.Methods())).
		Bool("archive", archiver != nil).
		Bool("auth", cfg.AuthEnabled).
		Msg("ledger wired")

	return a, nil
}
