package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cliplens/cliplens-server/internal/api"
	"github.com/cliplens/cliplens-server/internal/blob"
	"github.com/cliplens/cliplens-server/internal/config"
	"github.com/cliplens/cliplens-server/internal/db"
	"github.com/cliplens/cliplens-server/internal/extractor"
	"github.com/cliplens/cliplens-server/internal/logging"
	"github.com/cliplens/cliplens-server/internal/metrics"
	"github.com/cliplens/cliplens-server/internal/queue"
	"github.com/cliplens/cliplens-server/internal/video"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting cliplens server", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := video.NewRepository(database.Conn())
	m := metrics.New()

	videoStore, frameStore, err := buildBlobStores(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob stores: %w", err)
	}

	extractorClient := extractor.NewHTTPClient(cfg.ExtractorURL(), cfg.ExtractorTimeout(), logger)
	processor := video.NewProcessor(repo, videoStore, frameStore, extractorClient, m, logger)

	queueOpts := queue.Options{
		Workers:     cfg.Workers(),
		MaxAttempts: cfg.MaxAttempts(),
		RetryDelay:  cfg.RetryDelay(),
		Handler:     processor.ProcessSegment,
		OnExhausted: processor.HandleExhausted,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher queue.Publisher
	var consumer queue.Consumer

	if cfg.AMQPURL() != "" {
		rq, err := queue.NewRabbitQueue(cfg.AMQPURL(), cfg.QueueName(), queueOpts, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
		defer rq.Close()
		publisher, consumer = rq, rq
		logger.Info("segment queue backed by broker", "queue", cfg.QueueName())
	} else {
		mq := queue.NewMemoryQueue(queueOpts, logger)
		publisher, consumer = mq, mq
		logger.Warn("no broker configured, using in-process segment queue")
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error("segment consumer stopped", "error", err)
		}
	}()

	videoSvc := video.NewService(repo, videoStore, publisher, m, logger)

	apiServer := api.NewServer(api.ServerConfig{
		Port:         cfg.Port(),
		VideoService: videoSvc,
		Metrics:      m,
		Logger:       logger,
		StartTime:    startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildBlobStores returns the video source and frame stores, S3-backed when
// credentials are configured, in-memory otherwise. The in-memory fallback
// only suits local development: blobs do not survive a restart.
func buildBlobStores(cfg *config.EnvConfig, logger *slog.Logger) (blob.Store, blob.Store, error) {
	if !cfg.BlobEnabled() {
		logger.Warn("no S3 credentials configured, using in-memory blob stores")
		return blob.NewMemoryStore("mem://" + cfg.VideoBucket()), blob.NewMemoryStore("mem://" + cfg.FrameBucket()), nil
	}

	videoStore, err := blob.NewS3Store(blob.S3Config{
		AccessKey:      cfg.S3AccessKey(),
		SecretKey:      cfg.S3SecretKey(),
		Region:         cfg.S3Region(),
		Endpoint:       cfg.S3Endpoint(),
		Bucket:         cfg.VideoBucket(),
		ForcePathStyle: true,
	})
	if err != nil {
		return nil, nil, err
	}

	frameStore, err := blob.NewS3Store(blob.S3Config{
		AccessKey:      cfg.S3AccessKey(),
		SecretKey:      cfg.S3SecretKey(),
		Region:         cfg.S3Region(),
		Endpoint:       cfg.S3Endpoint(),
		Bucket:         cfg.FrameBucket(),
		ForcePathStyle: true,
	})
	if err != nil {
		return nil, nil, err
	}

	return videoStore, frameStore, nil
}
