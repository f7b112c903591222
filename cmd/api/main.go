package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pdv/internal/app"
	"github.com/noah-isme/backend-pdv/internal/audit"
	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/catalog"
	"github.com/noah-isme/backend-pdv/internal/checkout"
	"github.com/noah-isme/backend-pdv/internal/commission"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/config"
	"github.com/noah-isme/backend-pdv/internal/customer"
	"github.com/noah-isme/backend-pdv/internal/drawer"
	"github.com/noah-isme/backend-pdv/internal/health"
	"github.com/noah-isme/backend-pdv/internal/obs"
	"github.com/noah-isme/backend-pdv/internal/ratelimit"
	"github.com/noah-isme/backend-pdv/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "api").Str("env", cfg.AppEnv).Logger()
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()
	svcs, err := app.NewServices(deps)
	if err != nil {
		return err
	}

	var loginLimit *ratelimit.Handler
	if limiterStore, err := ratelimit.NewRedisStore(deps.Redis, "pdv:ratelimit"); err != nil {
		logger.Error().Err(err).Msg("login rate limit store disabled")
	} else if lim, err := ratelimit.New(limiterStore, cfg.LoginRateLimit); err != nil {
		return err
	} else {
		loginLimit = &ratelimit.Handler{
			Limiter: lim,
			Key:     ratelimit.ByClientIP("login:"),
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store") },
		}
	}

	auditSvc := &audit.Service{Store: deps.Store, Enabled: true}
	rt := routes{
		Logger:         logger,
		ServiceName:    cfg.OTelServiceName,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		BodyLimitBytes: cfg.BodyLimitBytes,
		HSTS:           cfg.IsProduction(),
		Metrics:        obs.NewHTTPMetrics(app.MetricsNamespace, nil),

		Auth:  svcs.Auth,
		Login: loginLimit,
		Idem:  common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL},
		Audit: audit.HTTPRecorder{
			Service: auditSvc,
			OnError: func(err error) { logger.Error().Err(err).Msg("audit record") },
		},
		Health: health.Handler{Deps: []health.Dependency{
			{Name: "postgres", Check: deps.Store.Ping},
			{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
				return deps.Redis.Ping(ctx).Err()
			}},
		}},
		Catalog: catalog.NewHandler(catalog.HandlerConfig{Service: svcs.Catalog}),
		AuthHTTP: &auth.Handler{
			Service:          svcs.Auth,
			AccessCookieName: accessCookie,
			CSRFCookieName:   csrfHeader,
			CookieSecure:     cfg.CookieSecure,
			Logger:           logger,
		},
		Customers:  &customer.Handler{Svc: svcs.Customers},
		Carts:      &cart.Handler{Svc: svcs.Carts},
		Checkout:   &checkout.Handler{Svc: svcs.Checkout, Carts: svcs.Carts},
		Commission: &commission.Handler{Svc: svcs.Commission},
		Reports:    &report.Handler{Svc: svcs.Reports},
		Drawer:     &drawer.Handler{Svc: svcs.Drawer},
		AuditHTTP:  &audit.Handler{Svc: auditSvc},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rt.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Fail readiness first so the balancer drains the instance before connections close.
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
	return nil
}
