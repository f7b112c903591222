package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pdv/internal/app"
	"github.com/noah-isme/backend-pdv/internal/checkout"
	"github.com/noah-isme/backend-pdv/internal/config"
	"github.com/noah-isme/backend-pdv/internal/events"
	"github.com/noah-isme/backend-pdv/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("worker exited")
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

	srv := asynq.NewServer(deps.AsynqRedis(), asynq.Config{
		Concurrency:    4,
		Queues:         map[string]int{app.CreditQueue: 1},
		RetryDelayFunc: checkout.RetryDelay(cfg.CreditRetryBase, 10*time.Minute),
		Logger:         asynqLogger{logger.With().Str("module", "asynq").Logger()},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
	mux := asynq.NewServeMux()
	checkout.TaskHandler{Svc: svcs.Checkout, SweepLimit: 200}.Register(mux)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	defer srv.Shutdown()

	scheduler := asynq.NewScheduler(deps.AsynqRedis(), &asynq.SchedulerOpts{Logger: asynqLogger{logger}})
	every := fmt.Sprintf("@every %s", cfg.CreditSweepInterval)
	if _, err := scheduler.Register(every, checkout.NewCreditSweepTask(), asynq.Queue(app.CreditQueue), asynq.Unique(cfg.CreditSweepInterval)); err != nil {
		return fmt.Errorf("register credit sweep: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaSalesTopic, cfg.KafkaBrokers...)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}()
		relay := &events.Relay{
			Store:     deps.Store,
			Publisher: publisher,
			Notifiers: []events.Notifier{obs.OutboxNotifier{}},
			Interval:  cfg.OutboxPollInterval,
			Logger:    logger.With().Str("module", "outbox").Logger(),
		}
		go relay.Run(ctx)
	} else {
		logger.Warn().Msg("KAFKA_BROKERS empty, outbox relay disabled")
	}

	logger.Info().Dur("sweep_interval", cfg.CreditSweepInterval).Msg("worker started")
	<-ctx.Done()
	logger.Info().Msg("worker stopping")
	return nil
}

// asynqLogger routes asynq's logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
