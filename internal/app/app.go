// Package app wires every leaf component into one Engine and drives the
// worker process's lifecycle: construct, resume, start, wait for shutdown,
// drain. Exactly one Engine exists per process; nothing here is a
// package-level singleton, so tests can construct as many independent
// Engines as needed (spec §9 DESIGN NOTES).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/captely/core/internal/audit"
	"github.com/captely/core/internal/config"
	"github.com/captely/core/internal/httpserver"
	"github.com/captely/core/internal/platform"
	"github.com/captely/core/internal/telemetry"
	"github.com/captely/core/pkg/cache"
	"github.com/captely/core/pkg/cascade"
	"github.com/captely/core/pkg/job"
	"github.com/captely/core/pkg/ledger"
	"github.com/captely/core/pkg/notify"
	"github.com/captely/core/pkg/provider"
	"github.com/captely/core/pkg/verify"
)

// Engine holds every live component the cascade depends on: pool, cache,
// provider set, rate limiter, circuit breakers, ledger, worker pool, and the
// health/metrics server. Constructed once per process and injected into
// whatever needs it, rather than reached for via package globals.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	pool *pgxpool.Pool
	rdb  *redis.Client

	coordinator *cascade.Coordinator
	jobs        *job.Manager
	health      *httpserver.Server
	auditLog    *audit.Writer

	workerPoolSize int
}

// New connects to every external dependency and wires the Engine. Callers
// own the returned Engine's lifecycle: call Resume then Start, and Close
// when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	registry := telemetry.NewMetricsRegistry()
	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	auditLog := audit.NewWriter(pool, logger)

	hlrAdapter := provider.NewHLR(cfg.HLRAPIKey, cfg.HLRCost,
		provider.RateLimit{MaxPerMinute: cfg.HLRMaxPerMinute, Burst: cfg.HLRBurst}, cfg.HLRCallTimeout)

	providerSet, err := provider.NewSet(cfg.CascadeOrder,
		provider.NewIcypeas(cfg.IcypeasAPIKey, cfg.IcypeasCost,
			provider.RateLimit{MaxPerMinute: cfg.IcypeasMaxPerMinute, Burst: cfg.IcypeasBurst}, cfg.IcypeasCallTimeout),
		provider.NewDropcontact(cfg.DropcontactAPIKey, cfg.DropcontactCost,
			provider.RateLimit{MaxPerMinute: cfg.DropcontactMaxPerMinute, Burst: cfg.DropcontactBurst}, cfg.DropcontactCallTimeout),
		provider.NewHunter(cfg.HunterAPIKey, cfg.HunterCost,
			provider.RateLimit{MaxPerMinute: cfg.HunterMaxPerMinute, Burst: cfg.HunterBurst}, cfg.HunterCallTimeout),
		provider.NewApollo(cfg.ApolloAPIKey, cfg.ApolloCost,
			provider.RateLimit{MaxPerMinute: cfg.ApolloMaxPerMinute, Burst: cfg.ApolloBurst}, cfg.ApolloCallTimeout),
	)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("building provider set: %w", err)
	}

	limiter := provider.NewLimiter()
	for _, a := range providerSet.Ordered() {
		limiter.Configure(a.Name(), a.RateLimit())
	}
	limiter.OnReject(func(name string) {
		telemetry.RateLimiterRejectionsTotal.WithLabelValues(name).Inc()
	})

	breakers := provider.NewBreakers(provider.BreakerConfig{})
	breakers.OnStateChange(func(name, from, to string) {
		telemetry.CircuitBreakerStateChangesTotal.WithLabelValues(name, to).Inc()
	})

	cacheStore := cache.NewStore(rdb, logger, telemetry.CacheHitsTotal)
	creditLedger := ledger.NewLedger(pool, logger, telemetry.CreditLedgerWritesTotal)
	emailVerifier := verify.NewEmailVerifier(disposableDomains, cfg.VerificationSMTPEnabled, cfg.VerificationSMTPProbeFrom, nil)
	phoneVerifier := verify.NewPhoneVerifier(hlrAdapter)

	quotas := ledger.Quotas{
		Daily:            float64(cfg.QuotaDailyDefault),
		Monthly:          float64(cfg.QuotaMonthlyDefault),
		PerProviderMonth: float64(cfg.QuotaPerProviderMonthDef),
	}

	coordinator := cascade.New(
		pool, logger,
		cascade.Config{
			TauMin: cfg.CascadeTauMin, TauStop: cfg.CascadeTauStop,
			ContactDeadline: cfg.CascadeContactTimeout, ProviderCallTimeout: 10 * time.Second,
			EnrichmentUnitPrice: cfg.EnrichmentUnitPrice, Quotas: quotas,
			LowCreditThreshold: float64(cfg.LowCreditThreshold),
		},
		providerSet, limiter, breakers, cacheStore, creditLedger, emailVerifier, phoneVerifier,
		notifier,
		telemetry.EnrichmentsTotal, telemetry.CascadeProviderCallsTotal, telemetry.CascadeDuration,
	)

	workerPoolSize := cfg.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = runtime.NumCPU() * 4
	}
	jobManager := job.New(pool, logger, coordinator, notifier, auditLog, workerPoolSize, cfg.WorkerQueueCapacity,
		telemetry.WorkerPoolQueueDepth, telemetry.JobDuration)

	health := httpserver.New(cfg.ListenAddr(), cfg.MetricsPath, registry, logger, map[string]httpserver.HealthChecker{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	return &Engine{
		cfg: cfg, logger: logger,
		pool: pool, rdb: rdb,
		coordinator: coordinator, jobs: jobManager, health: health, auditLog: auditLog,
		workerPoolSize: workerPoolSize,
	}, nil
}

// Jobs exposes the Job Manager for the ingestion layer to submit work
// against (spec §6 SubmitJob, GetJob, ListJobs, GetContacts, CancelJob).
func (e *Engine) Jobs() *job.Manager { return e.jobs }

// Resume requeues every contact left pending by a prior process (spec §4.7
// restart resumption). Call once before Start.
func (e *Engine) Resume(ctx context.Context) error {
	return e.jobs.Resume(ctx)
}

// Start launches the worker pool and blocks serving the health/metrics
// server until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.auditLog.Start(ctx)
	e.jobs.Start(ctx)
	e.logger.Info("captely core started", "mode", e.cfg.Mode, "worker_pool_size", e.workerPoolSize)
	return e.health.Start(ctx)
}

// Close drains the worker pool, flushes any buffered audit entries, and
// releases every connection the Engine holds. Safe to call after Start
// returns.
func (e *Engine) Close() {
	e.jobs.Stop(30 * time.Second)
	e.auditLog.Close()
	e.pool.Close()
	_ = e.rdb.Close()
}

// Run is the single entry point cmd/captely/main.go invokes: build an
// Engine for cfg, resume pending work, then either exit immediately
// ("resume" mode) or serve until ctx is cancelled ("worker" mode).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	engine, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Resume(ctx); err != nil {
		return fmt.Errorf("resuming pending jobs: %w", err)
	}

	if cfg.Mode == "resume" {
		logger.Info("resume mode: requeued pending work, exiting")
		return nil
	}

	return engine.Start(ctx)
}

// disposableDomains is a small, locally embedded set of well-known
// throwaway-email providers, checked at L1 (spec §4.5). No library in the example
// corpus ships this list, so it is carried as a Go literal rather than an
// external dependency.
var disposableDomains = map[string]bool{
	"mailinator.com": true, "guerrillamail.com": true, "10minutemail.com": true,
	"tempmail.com": true, "throwawaymail.com": true, "yopmail.com": true,
	"trashmail.com": true, "getnada.com": true, "sharklasers.com": true,
}
