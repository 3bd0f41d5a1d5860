// Package app wires infrastructure clients and domain services shared by the
// API server, the submission worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backoffice-pricing/internal/catalog"
	"github.com/noah-isme/backoffice-pricing/internal/config"
	"github.com/noah-isme/backoffice-pricing/internal/db"
	"github.com/noah-isme/backoffice-pricing/internal/invoice"
	"github.com/noah-isme/backoffice-pricing/internal/liquidation"
	"github.com/noah-isme/backoffice-pricing/internal/lock"
	"github.com/noah-isme/backoffice-pricing/internal/market"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/ratelimit"
	"github.com/noah-isme/backoffice-pricing/internal/resilience"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

// SubmissionQueue is the asynq queue carrying backend submissions.
const SubmissionQueue = "submissions"

// Dependencies holds the infrastructure clients of one process.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	DB           *pgxpool.Pool
	Redis        *redis.Client
	TaskClient   *asynq.Client
	Inspector    *asynq.Inspector
	LimiterStore limiter.Store
	Breakers     *resilience.Breakers
}

// Services groups the domain services built on top of Dependencies.
type Services struct {
	Catalog     *catalog.Service
	Invoice     *invoice.Service
	Liquidation *liquidation.Service
}

// Connect opens Postgres and Redis, applying migrations first when enabled.
// application names the process in pg_stat_activity.
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger, application string) (*Dependencies, error) {
	if cfg.MigrateOnStart {
		version, err := db.Up(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Uint("version", version).Msg("migrations applied")
	}

	pool, err := NewPool(ctx, cfg, application)
	if err != nil {
		return nil, err
	}
	rdb, err := NewRedis(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store, err := ratelimit.NewLimiterStore(rdb)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("init limiter store: %w", err)
	}
	connOpt, err := RedisConnOpt(cfg)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	return &Dependencies{
		Config:       cfg,
		Logger:       logger,
		DB:           pool,
		Redis:        rdb,
		TaskClient:   asynq.NewClient(connOpt),
		Inspector:    asynq.NewInspector(connOpt),
		LimiterStore: store,
		Breakers:     Breakers(cfg, logger),
	}, nil
}

// Close releases every client. It is safe on partially built values.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Inspector != nil {
		if err := d.Inspector.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task inspector")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// NewPool connects a traced pgx pool.
func NewPool(ctx context.Context, cfg *config.Config, application string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = application

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis connects a Redis client instrumented for tracing and metrics.
func NewRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("instrument redis metrics: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisConnOpt converts REDIS_URL for asynq.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for queue: %w", err)
	}
	return opt, nil
}

// Breakers builds one circuit breaker per outbound target from the
// per-target circuit settings.
func Breakers(cfg *config.Config, logger zerolog.Logger) *resilience.Breakers {
	policies := make(map[string]resilience.Policy, len(cfg.Circuits))
	for target, cc := range cfg.Circuits {
		if target == "" {
			continue
		}
		policies[target] = circuitPolicy(cc)
	}
	return resilience.NewBreakers(circuitPolicy(cfg.CircuitFor("")), policies, logger)
}

func circuitPolicy(cc config.CircuitConfig) resilience.Policy {
	return resilience.Policy{
		MinSamples:     cc.MinSamples,
		FailureRatio:   cc.FailureRate,
		Window:         cc.Window,
		Cooldown:       cc.CooldownTimeout,
		HalfOpenTrials: cc.HalfOpenTrials,
	}
}

// OutboundHTTP builds the resilient client used for a collaborator, guarded
// by the breaker of target.
func OutboundHTTP(cfg *config.Config, breakers *resilience.Breakers, target string, timeout time.Duration) resilience.HTTPClient {
	return resilience.NewHTTPClient(resilience.Options{
		Target:      target,
		Timeout:     timeout,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: cfg.Retry.BaseBackoff,
		MaxBackoff:  cfg.Retry.MaxBackoff,
		Jitter:      0.2,
		Breaker:     breakers.For(target),
	})
}

// Enqueuer returns the asynq-backed submission enqueuer.
func (d *Dependencies) Enqueuer() submission.Enqueuer {
	enq := submission.AsynqEnqueuer{
		Client:    d.TaskClient,
		Queue:     SubmissionQueue,
		Retention: d.Config.IdempotencyTTL,
	}
	if d.Inspector != nil {
		enq.Inspector = d.Inspector
	}
	return enq
}

func (d *Dependencies) breakers() *resilience.Breakers {
	if d.Breakers == nil {
		d.Breakers = Breakers(d.Config, d.Logger)
	}
	return d.Breakers
}

// Locker returns the per-contract Redis lock.
func (d *Dependencies) Locker() lock.Locker {
	return lock.Locker{R: d.Redis, MaxWait: d.Config.LockTTL}
}

// Services builds the domain services.
func (d *Dependencies) Services() (*Services, error) {
	if d.DB == nil || d.Redis == nil {
		return nil, errors.New("app: database and redis are required")
	}
	cfg := d.Config
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Store:  catalog.NewPGStore(d.DB),
		Cache:  catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
		Logger: d.Logger,
	})
	if err != nil {
		return nil, err
	}
	marketClient, err := market.NewClient(market.Config{
		BaseURL:  cfg.MarketPriceBaseURL,
		HTTP:     OutboundHTTP(cfg, d.breakers(), config.TargetMarketPrice, cfg.MarketPriceTimeout),
		Redis:    d.Redis,
		CacheTTL: cfg.MarketPriceCacheTTL,
		Logger:   d.Logger,
	})
	if err != nil {
		return nil, err
	}
	invoiceSvc, err := invoice.NewService(invoice.ServiceConfig{
		Catalog:       catalogSvc,
		Enqueuer:      d.Enqueuer(),
		DefaultLocale: cfg.DefaultLocale,
		Logger:        d.Logger,
	})
	if err != nil {
		return nil, err
	}
	liquidationSvc, err := liquidation.NewService(liquidation.ServiceConfig{
		Store:    liquidation.NewPGStore(d.DB),
		Market:   marketClient,
		Enqueuer: d.Enqueuer(),
		Locker:   d.Locker(),
		LockTTL:  cfg.LockTTL,
		Logger:   d.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Services{Catalog: catalogSvc, Invoice: invoiceSvc, Liquidation: liquidationSvc}, nil
}
