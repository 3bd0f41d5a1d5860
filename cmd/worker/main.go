package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backoffice-pricing/internal/app"
	"github.com/noah-isme/backoffice-pricing/internal/config"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics("pricing", nil)

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   "pricing-worker",
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

	connOpt, err := app.RedisConnOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("queue connection")
	}

	forwarder := submission.Forwarder{
		BaseURL: cfg.SubmissionBaseURL,
		HTTP:    app.OutboundHTTP(cfg, app.Breakers(cfg, logger), config.TargetSubmissionForward, 10*time.Second),
		Logger:  logger,
	}

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency:    cfg.QueueConcurrency,
		Queues:         map[string]int{app.SubmissionQueue: 1},
		Logger:         obs.AsynqLogger{Logger: logger},
		RetryDelayFunc: submission.RetryDelay(time.Second, 5*time.Minute),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried >= maxRetry {
				logger.Error().Err(err).Str("task_type", task.Type()).Int("retried", retried).Msg("submission_dead_lettered")
			}
		}),
		ShutdownTimeout: 15 * time.Second,
	})

	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	// Run blocks until SIGTERM or SIGINT.
	if err := srv.Run(submission.NewServeMux(forwarder)); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}
