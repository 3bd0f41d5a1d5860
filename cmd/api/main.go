package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/backoffice-pricing/internal/app"
	"github.com/noah-isme/backoffice-pricing/internal/auth"
	"github.com/noah-isme/backoffice-pricing/internal/config"
	"github.com/noah-isme/backoffice-pricing/internal/health"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
)

const metricsNamespace = "pricing"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, nil, nil)

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "pricing-api",
		Endpoint:      cfg.Tracing.Endpoint,
		Exporter:      cfg.Tracing.Exporter,
		SamplingRatio: cfg.Tracing.SamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Connect(connectCtx, cfg, logger, "pricing-api")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close()

	services, err := deps.Services()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}
	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		MaxTTL:   cfg.JWTMaxTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}

	handler, err := app.NewRouter(app.RouterConfig{
		Config:       cfg,
		Logger:       logger,
		Services:     services,
		Verifier:     verifier,
		Redis:        deps.Redis,
		LimiterStore: deps.LimiterStore,
		HTTPMetrics:  httpMetrics,
		Gatherer:     prometheus.DefaultGatherer,
		Checks: map[string]health.Check{
			"db":    health.PingCheck(deps.DB),
			"redis": func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() },
		},
		Circuits: deps.Breakers.Snapshot,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}
