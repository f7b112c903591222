// Package app opens the shared infrastructure and assembles the domain
// services used by both the API and the worker.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/cache"
	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/catalog"
	"github.com/noah-isme/backend-pdv/internal/checkout"
	"github.com/noah-isme/backend-pdv/internal/commission"
	"github.com/noah-isme/backend-pdv/internal/config"
	"github.com/noah-isme/backend-pdv/internal/customer"
	"github.com/noah-isme/backend-pdv/internal/drawer"
	"github.com/noah-isme/backend-pdv/internal/lock"
	"github.com/noah-isme/backend-pdv/internal/obs"
	"github.com/noah-isme/backend-pdv/internal/report"
	"github.com/noah-isme/backend-pdv/internal/resilience"
	"github.com/noah-isme/backend-pdv/internal/store"
)

// MetricsNamespace prefixes every Prometheus collector of the process.
const MetricsNamespace = "pdv"

// CreditQueue is the asynq queue carrying credit retries and sweeps.
const CreditQueue = "credit"

// Dependencies holds the connections shared across modules.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	Pool   *pgxpool.Pool
	// SQL shares Pool through database/sql for the report aggregates.
	SQL   *sql.DB
	Redis *redis.Client
	Store *store.Store
	Tasks *asynq.Client

	shutdownTracer func(context.Context) error
}

// Open connects to Postgres and Redis, installs tracing and registers the
// process metrics. Callers must Close the result.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}

	shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.OTelEnabled,
		ServiceName:   cfg.OTelServiceName,
		Endpoint:      cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	d.shutdownTracer = shutdown
	obs.MustRegisterDomainMetrics(MetricsNamespace, nil)
	resilience.MustRegisterMetrics(MetricsNamespace, nil)

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, errors.Join(err, d.Close(ctx))
		}
		logger.Info().Msg("migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("parse database config: %w", err), d.Close(ctx))
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.OTelServiceName
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	d.Pool, err = pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect database: %w", err), d.Close(ctx))
	}
	if err := d.Pool.Ping(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping database: %w", err), d.Close(ctx))
	}
	d.SQL = stdlib.OpenDBFromPool(d.Pool)
	d.Store = store.NewStore(d.Pool)

	d.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisotel.InstrumentTracing(d.Redis); err != nil {
		logger.Warn().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(d.Redis); err != nil {
		logger.Warn().Err(err).Msg("instrument redis metrics")
	}
	if err := d.Redis.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", err), d.Close(ctx))
	}
	d.Tasks = asynq.NewClient(d.AsynqRedis())
	return d, nil
}

// AsynqRedis returns the asynq connection options for the configured Redis.
func (d *Dependencies) AsynqRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     d.Config.RedisAddr,
		Password: d.Config.RedisPassword,
		DB:       d.Config.RedisDB,
	}
}

// Close releases every connection opened so far.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.Tasks != nil {
		errs = append(errs, d.Tasks.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.SQL != nil {
		errs = append(errs, d.SQL.Close())
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.shutdownTracer != nil {
		errs = append(errs, d.shutdownTracer(ctx))
	}
	return errors.Join(errs...)
}

// Services is the domain layer assembled over Dependencies.
type Services struct {
	Auth       *auth.Service
	Catalog    *catalog.Service
	Carts      *cart.Service
	Checkout   *checkout.Service
	Customers  *customer.Service
	Commission *commission.Service
	Reports    *report.Service
	Drawer     *drawer.Service
}

// NewServices wires the domain services on d.
func NewServices(d *Dependencies) (*Services, error) {
	cfg := d.Config
	loc := cfg.Location()
	locker := lock.Locker{R: d.Redis, WaitTimeout: cfg.CreditLockTTL}

	authSvc, err := auth.NewService(auth.Config{
		Users:    d.Store,
		Secret:   cfg.JWTSecret,
		TokenTTL: cfg.JWTTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Store: d.Store,
		Cache: cache.New(d.Redis, cfg.CatalogCacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}

	breaker := resilience.NewBreaker(cfg.CreditBreakerMin, cfg.CreditBreakerRatio, cfg.CreditBreakerOpen).
		WithTarget("customer-credit").
		WithLogger(d.Logger)
	checkoutSvc := &checkout.Service{
		Sales:     d.Store,
		Customers: d.Store,
		Sellers:   d.Store,
		Credit: &customer.Ledger{
			Store:   d.Store,
			Locker:  locker,
			Breaker: breaker,
			LockTTL: cfg.CreditLockTTL,
		},
		Retry: checkout.AsynqScheduler{
			Client:    d.Tasks,
			Queue:     CreditQueue,
			MaxRetry:  cfg.CreditRetryMax,
			Delay:     cfg.CreditRetryBase,
			UniqueFor: cfg.CreditRetryBase,
		},
		StaleAfter: cfg.CreditSweepInterval,
		Logger:     d.Logger.With().Str("module", "checkout").Logger(),
	}

	reports := &report.Service{
		Q:     report.NewAggregator(d.SQL),
		Cache: cache.New(d.Redis, cfg.ReportCacheTTL),
		Loc:   loc,
	}
	checkoutSvc.Reports = reports

	return &Services{
		Auth:    authSvc,
		Catalog: catalogSvc,
		Carts: &cart.Service{
			Store:    cart.RedisStore{R: d.Redis, TTL: cfg.CartSessionTTL},
			Products: catalogSvc,
			Locker:   locker,
		},
		Checkout:  checkoutSvc,
		Customers: &customer.Service{Store: d.Store},
		Commission: &commission.Service{
			Configs:  d.Store,
			Goals:    d.Store,
			Sales:    reports,
			Advances: d.Store,
			Sellers:  d.Store,
			Cache:    cache.New(d.Redis, cfg.CommissionCacheTTL),
			Loc:      loc,
		},
		Reports: reports,
		Drawer:  &drawer.Service{Store: d.Store, Loc: loc},
	}, nil
}
