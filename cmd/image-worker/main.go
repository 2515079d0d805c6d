package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vnovel-server/internal/config"
	"vnovel-server/internal/database"
	"vnovel-server/internal/image"
	"vnovel-server/internal/logger"
	"vnovel-server/internal/messaging"
	"vnovel-server/internal/repository"
	"vnovel-server/internal/worker"
)

const reconnectDelay = 5 * time.Second

func main() {
	// --- 1. Загрузка конфигурации ---
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("Failed to load worker config: %v", err)
	}

	// --- 2. Инициализация логгера ---
	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Starting Image Worker...", zap.Int("concurrency", cfg.Concurrency))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 3. Журнал изображений ---
	records := repository.NewMemoryImageRepository()
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPool(ctx, config.DatabaseConfig{
			DSN:        cfg.DatabaseURL,
			MaxConns:   int32(cfg.Concurrency) + 1,
			MaxRetries: 10,
			RetryDelay: 3 * time.Second,
		}, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		records = repository.NewPgImageRepository(pool, appLogger)
	} else {
		appLogger.Warn("DATABASE_URL not set, image records are kept in memory")
	}

	// --- 4. Сервис генерации изображений ---
	imageCfg := cfg.ImageConfig()
	store, err := image.NewFileStore(imageCfg.SavePath, imageCfg.PublicBaseURL)
	if err != nil {
		appLogger.Fatal("Failed to initialize image store", zap.Error(err))
	}
	images := image.NewService(imageCfg, store, nil, records, appLogger)

	// --- 5. RabbitMQ: задачи и результаты ---
	for {
		if err := consumeOnce(ctx, cfg, images, appLogger); err != nil {
			appLogger.Error("Image worker consumer stopped", zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
		appLogger.Info("Reconnecting to RabbitMQ", zap.Duration("delay", reconnectDelay))
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	appLogger.Info("Image Worker shut down gracefully")
}

// consumeOnce подключается к брокеру и обрабатывает задачи, пока соединение живо.
func consumeOnce(ctx context.Context, cfg *config.WorkerConfig, images worker.JobRunner, log *zap.Logger) error {
	conn, err := messaging.Connect(ctx, cfg.RabbitMQURL, log)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer conn.Close()

	publisher, err := messaging.NewRabbitPublisher(conn, cfg.ImageResultQueue, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	handler := worker.NewHandler(log, images, publisher, cfg.PushGatewayURL, cfg.Concurrency)
	return messaging.Consume(ctx, conn, messaging.ConsumerConfig{
		Queue:    cfg.ImageTaskQueue,
		Tag:      cfg.ConsumerName,
		Prefetch: 1,
	}, handler, log)
}
