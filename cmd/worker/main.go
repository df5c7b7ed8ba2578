package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"eventcert/internal/certificate"
	"eventcert/internal/config"
	"eventcert/internal/database"
	"eventcert/internal/event"
	"eventcert/internal/integration"
	"eventcert/internal/issuance"
	"eventcert/internal/logging"
	"eventcert/internal/mailer"
	"eventcert/internal/metrics"
	"eventcert/internal/storage"
	"eventcert/internal/tasks"
	"eventcert/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger, logCloser, err := logging.New(cfg.Log, "worker")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	events, err := event.NewStore(db, cfg.Snowflake.Node)
	if err != nil {
		return fmt.Errorf("init event store: %w", err)
	}
	renderer, err := certificate.NewRenderer(certificate.Engine(cfg.Certificate.Engine), logger)
	if err != nil {
		return fmt.Errorf("init certificate renderer: %w", err)
	}
	if closer, ok := renderer.(io.Closer); ok {
		defer closer.Close()
	}
	mail, err := mailer.New(cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}

	fetcher := integration.NewFetcher(cfg.Registrations, logger)
	orchestrator := issuance.New(issuance.Deps{
		Events:        events,
		Templates:     storage.NewTemplateStore(storageClient),
		Registrations: fetcher,
		Renderer:      renderer,
		Mailer:        mail,
		Deliveries:    events,
		VerifyBaseURL: cfg.Certificate.VerifyBaseURL,
		DateFormat:    cfg.Certificate.DateFormat,
		Logger:        logger,
	})

	scheduler := cron.New()
	regSync := worker.NewRegistrationSync(events, fetcher, logger)
	if cfg.Registrations.SyncCron != "" {
		if _, err := regSync.Schedule(scheduler, cfg.Registrations.SyncCron); err != nil {
			return fmt.Errorf("schedule registration sync: %w", err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		logger.Info("registration sync scheduled", slog.String("spec", cfg.Registrations.SyncCron))
	}

	if cfg.Worker.MetricsAddr != "" {
		metricsSrv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		defer metricsSrv.Close()
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	batchHandler := worker.NewBatchTaskHandler(orchestrator, storage.NewBatchStore(storageClient), redisClient, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeIssuanceBatch, batchHandler)

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start worker server: %w", err)
	}
	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()), slog.Int("concurrency", cfg.Worker.Concurrency))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down worker")
	server.Shutdown()
	return nil
}

// asynqLogger 把 asynq 的内部日志接入 slog。
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) asynqLogger {
	return asynqLogger{logger: logger.With(slog.String("component", "asynq"))}
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
