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
	"github.com/redis/go-redis/v9"

	"eventcert/internal/api"
	"eventcert/internal/auth"
	"eventcert/internal/certificate"
	"eventcert/internal/config"
	"eventcert/internal/database"
	"eventcert/internal/event"
	"eventcert/internal/integration"
	"eventcert/internal/issuance"
	"eventcert/internal/logging"
	"eventcert/internal/mailer"
	"eventcert/internal/otp"
	"eventcert/internal/scan"
	"eventcert/internal/storage"
	"eventcert/internal/verification"
)

func main() {
	cfg := config.MustLoad()

	logger, logCloser, err := logging.New(cfg.Log, "api")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("api bootstrapped",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
		slog.String("delivery_mode", cfg.Certificate.DeliveryMode),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

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

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	authService, err := auth.NewServiceFromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	events, err := event.NewStore(db, cfg.Snowflake.Node)
	if err != nil {
		return fmt.Errorf("init event store: %w", err)
	}

	document, err := certificate.NewRenderer(certificate.Engine(cfg.Certificate.Engine), logger)
	if err != nil {
		return fmt.Errorf("init certificate renderer: %w", err)
	}
	if closer, ok := document.(io.Closer); ok {
		defer closer.Close()
	}

	mail, err := mailer.New(cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}

	templates := storage.NewTemplateStore(storageClient)
	fetcher := integration.NewFetcher(cfg.Registrations, logger)
	orchestrator := issuance.New(issuance.Deps{
		Events:        events,
		Templates:     templates,
		Registrations: fetcher,
		Renderer:      document,
		Mailer:        mail,
		Deliveries:    events,
		VerifyBaseURL: cfg.Certificate.VerifyBaseURL,
		DateFormat:    cfg.Certificate.DateFormat,
		Logger:        logger,
	})

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, cfg, api.Services{
		DB:            db,
		Redis:         redisClient,
		Events:        events,
		Registrations: fetcher,
		Templates:     templates,
		Signer:        storageClient,
		Scanner:       scan.New(cfg.Clamd.Address),
		Tokens:        authService,
		OTP:           otp.NewStore(redisClient, otp.LogSender{Logger: logger}, cfg.OTP, logger),
		Verifier:      verification.NewResolver(events, logger),
		Batches:       orchestrator,
		Stager:        storage.NewBatchStore(storageClient),
		Enqueuer:      asynqClient,
		Document:      document,
		Preview:       certificate.NewPreviewRenderer(cfg.Certificate.PreviewScale, logger),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	// 同步批次可能仍在发送，给足时间收尾。
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.SendTimeout+10*time.Second)
	defer cancel()
	logger.Info("shutting down api")
	return srv.Shutdown(shutdownCtx)
}
