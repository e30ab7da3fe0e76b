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

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/database"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/phone"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/reporting"
	"github.com/EnriquePaullada/gp-data-v4/internal/repository/mongodb"
	"github.com/EnriquePaullada/gp-data-v4/internal/service"
	"github.com/EnriquePaullada/gp-data-v4/internal/worker"
)

var appVersion = "dev"

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "gp-data-worker"}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log

	log.Info("starting worker service", zap.String("version", appVersion))

	sentryEnabled, err := reporting.Init(cfg.Sentry, "gp-data-v4@"+appVersion)
	if err != nil {
		log.Error("failed to initialize Sentry", zap.Error(err))
	} else if sentryEnabled {
		defer reporting.Flush(reporting.DefaultFlushTimeout)
	}

	deps, cleanup, err := initWorkerDependencies(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer cleanup()

	if sentryEnabled {
		reporter := reporting.NewTaskErrorReporter(nil)
		deps.OnTaskError = func(ctx context.Context, task *asynq.Task, err error) {
			reporter.Report(ctx, task, err)
		}
	}

	workerServer, err := worker.NewServer(log, cfg, deps)
	if err != nil {
		log.Fatal("failed to create worker server", zap.Error(err))
	}

	metricsServer := startMetricsServer(cfg.Server.MetricsAddr, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- workerServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down worker...")
		workerServer.Stop()
	case err := <-errCh:
		if err != nil {
			log.Error("worker server error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown failed", zap.Error(err))
	}

	log.Info("worker stopped")
}

// initWorkerDependencies connects the stores and builds the services the workers drive
func initWorkerDependencies(cfg *config.Config, log *zap.Logger) (*worker.WorkerDependencies, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager := database.NewMongoManager(cfg.Mongo, cfg.Retention)
	if err := manager.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := manager.CreateIndexes(ctx); err != nil {
		_ = manager.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	redisDB, err := database.NewRedis(ctx, cfg.Redis, cfg.Worker.Concurrency)
	if err != nil {
		_ = manager.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	leads := mongodb.NewLeadRepository(manager)
	messages := mongodb.NewMessageRepository(manager)
	conversations := service.NewConversationService(log, leads, messages, phone.NewNormalizer(cfg.Phone.DefaultRegion))

	deps := &worker.WorkerDependencies{
		Redis:    redisDB.Client,
		Services: conversations,
	}

	if archive, err := initMinio(ctx, cfg); err != nil {
		log.Warn("conversation archives disabled", zap.Error(err))
	} else if archive != nil {
		deps.Archive = archive
		deps.ArchiveBucket = cfg.MinIO.Bucket
	}

	cleanup := func() {
		_ = redisDB.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.Disconnect(ctx)
	}

	return deps, cleanup, nil
}

// initMinio initializes the archive client and makes sure its bucket exists.
// It returns nil when archives are disabled.
func initMinio(ctx context.Context, cfg *config.Config) (*minio.Client, error) {
	if !cfg.MinIO.Enabled || cfg.MinIO.Endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinIO.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIO.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return client, nil
}

func startMetricsServer(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("metrics server listening", zap.String("addr", addr))
	return srv
}
