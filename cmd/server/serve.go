package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vnovel-server/internal/catalog"
	"vnovel-server/internal/chat"
	"vnovel-server/internal/config"
	"vnovel-server/internal/database"
	delivery "vnovel-server/internal/delivery/http"
	ws "vnovel-server/internal/delivery/websocket"
	"vnovel-server/internal/game"
	"vnovel-server/internal/image"
	"vnovel-server/internal/llm"
	"vnovel-server/internal/logger"
	"vnovel-server/internal/messaging"
	"vnovel-server/internal/repository"
	"vnovel-server/internal/story"
	"vnovel-server/pkg/taskmanager"
)

type repositories struct {
	sessions  repository.SessionRepository
	settings  repository.SettingsRepository
	images    repository.ImageRepository
	documents repository.DocumentRepository
	chats     repository.ChatRepository
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()
	zap.ReplaceGlobals(appLogger)
	appLogger.Info("Starting visual novel server", zap.String("env", cfg.AppEnv))

	// --- Хранилища ---
	repos, pool, err := openRepositories(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	cache, closeCache := newImageCache(ctx, cfg, appLogger)
	defer closeCache()

	// --- Сервисы ---
	store, err := image.NewFileStore(cfg.Image.SavePath, cfg.Image.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize image store: %w", err)
	}
	images := image.NewService(cfg.Image, store, cache, repos.images, appLogger)

	aiClient, err := llm.NewAIClient(cfg.AI, cfg.Chat.Model, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create AI client: %w", err)
	}
	retry := llm.RetryPolicy{MaxAttempts: cfg.AI.MaxAttempts, BaseDelay: cfg.AI.BaseRetryDelay}
	stories := story.NewGenerator(aiClient, images, cfg.Story, appLogger).WithRetryPolicy(retry)
	chatService := chat.NewService(aiClient, aiClient.Tools(), repos.chats, cfg.Chat, appLogger,
		chat.NewCreateFileTool(repos.documents),
		chat.NewCreateImageTool(images),
	)

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	games := game.NewService(repos.sessions, repos.settings, cat, stories, images, appLogger)

	// --- Уведомления и фоновые задачи ---
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	var wg sync.WaitGroup

	hub := ws.NewHub(cfg.Server.AllowedOrigins(), appLogger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(runCtx)
	}()

	tasks := taskmanager.New(taskmanager.Config{MaxTasks: cfg.Tasks.MaxActive})
	tasks.SetWebSocketNotifier(hub)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tasks.RunCleanup(runCtx, cfg.Tasks.CleanupInterval, cfg.Tasks.RetainFor)
	}()

	var publisher messaging.Publisher
	if cfg.MQ.URL != "" {
		conn, rabbitPublisher, err := startMessaging(runCtx, cfg.MQ, hub, &wg, appLogger)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
	} else {
		appLogger.Info("RABBITMQ_URL not set, image jobs run in-process")
	}

	// --- HTTP ---
	handler := delivery.NewHandler(delivery.Deps{
		Chat:      chatService,
		Stories:   stories,
		Images:    images,
		Games:     games,
		Documents: repos.documents,
		Catalog:   cat,
		Tasks:     tasks,
		Publisher: publisher,
		WS:        hub,
		TaskLog:   logger.NewZerolog(cfg.Logger),
	}, appLogger)
	router := delivery.NewRouter(delivery.RouterConfig{
		Env:            cfg.AppEnv,
		AllowedOrigins: cfg.Server.AllowedOrigins(),
		JWTSecret:      cfg.Auth.JWTSecret,
		ImagesDir:      store.Root(),
		Metrics:        true,
	}, handler, appLogger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			appLogger.Error("HTTP server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	}

	// --- Graceful Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Task manager did not stop in time", zap.Error(err))
	}
	cancelRun()
	wg.Wait()

	appLogger.Info("Server stopped gracefully")
	return nil
}

// openRepositories подключает PostgreSQL, если задан DATABASE_URL, иначе хранит данные в памяти.
func openRepositories(ctx context.Context, cfg *config.Config, log *zap.Logger) (repositories, *pgxpool.Pool, error) {
	if cfg.DB.DSN == "" {
		log.Warn("DATABASE_URL not set, using in-memory repositories")
		return repositories{
			sessions:  repository.NewMemorySessionRepository(),
			settings:  repository.NewMemorySettingsRepository(),
			images:    repository.NewMemoryImageRepository(),
			documents: repository.NewMemoryDocumentRepository(),
			chats:     repository.NewMemoryChatRepository(),
		}, nil, nil
	}

	pool, err := database.NewPool(ctx, cfg.DB, log)
	if err != nil {
		return repositories{}, nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := database.NewMigrator(pool, log).Up(ctx); err != nil {
			pool.Close()
			return repositories{}, nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	return repositories{
		sessions:  repository.NewPgSessionRepository(pool, log),
		settings:  repository.NewPgSettingsRepository(pool, log),
		images:    repository.NewPgImageRepository(pool, log),
		documents: repository.NewPgDocumentRepository(pool, log),
		chats:     repository.NewPgChatRepository(pool, log),
	}, pool, nil
}

// newImageCache выбирает Redis, если он задан и доступен, иначе кэш в памяти.
func newImageCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (image.Cache, func()) {
	if cfg.Redis.Addr == "" {
		return image.NewMemoryCache(cfg.Image.CacheTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis is unavailable, falling back to in-memory image cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return image.NewMemoryCache(cfg.Image.CacheTTL), func() {}
	}
	log.Info("Redis image cache connected", zap.String("addr", cfg.Redis.Addr))
	return image.NewRedisCache(client, cfg.Image.CacheTTL, log), func() { _ = client.Close() }
}

// startMessaging подключается к RabbitMQ, создает издателя задач и запускает прием результатов воркера.
func startMessaging(ctx context.Context, cfg config.RabbitMQConfig, notifier messaging.UserNotifier, wg *sync.WaitGroup, log *zap.Logger) (*amqp091.Connection, *messaging.RabbitPublisher, error) {
	conn, err := messaging.Connect(ctx, cfg.URL, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	publisher, err := messaging.NewRabbitPublisher(conn, cfg.ImageTaskQueue, log)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create image task publisher: %w", err)
	}

	results := messaging.NewResultHandler(notifier, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumerCfg := messaging.ConsumerConfig{Queue: cfg.ImageResultQueue, Tag: "vnovel-server", Prefetch: 10}
		if err := messaging.Consume(ctx, conn, consumerCfg, results, log); err != nil && ctx.Err() == nil {
			log.Error("Image result consumer stopped", zap.Error(err))
		}
	}()
	return conn, publisher, nil
}
