package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamemaster-server/internal/composer"
	"gamemaster-server/internal/config"
	"gamemaster-server/internal/gateway"
	"gamemaster-server/internal/handler"
	"gamemaster-server/internal/logger"
	"gamemaster-server/internal/orchestrator"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"
	"gamemaster-server/internal/service"
	"gamemaster-server/internal/stream"
	"gamemaster-server/internal/tools"
	"gamemaster-server/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Starting gamemaster server", zap.String("logLevel", cfg.LogLevel))

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	zapLogger.Info("Connected to PostgreSQL")

	if err := repository.EnsureSchema(context.Background(), dbPool); err != nil {
		zapLogger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	redisClient, err := setupRedis(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zapLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitConn.Close()
	zapLogger.Info("Connected to RabbitMQ")

	// Repositories.
	campaignRepo := repository.NewPgCampaignRepository(dbPool, zapLogger)
	characterRepo := repository.NewPgCharacterRepository(dbPool, zapLogger)
	messageRepo := repository.NewPgMessageRepository(dbPool, zapLogger)
	memoryRepo := repository.NewPgMemoryRepository(dbPool, zapLogger)
	summaryRepo := repository.NewPgSummaryRepository(dbPool, zapLogger)
	jobRepo := repository.NewPgJobProgressRepository(dbPool, zapLogger)
	systemRepo := repository.NewPgGameSystemRepository(dbPool, zapLogger)
	mediaStore := repository.NewRedisMediaStore(redisClient, cfg.StreamTTL, zapLogger)

	// Infrastructure.
	streamStore := stream.NewRedisStore(redisClient, cfg.StreamTTL, cfg.StreamLivenessTimeout, zapLogger)
	taskScheduler, err := scheduler.NewRabbitMQScheduler(rabbitConn, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create task scheduler", zap.Error(err))
	}

	// Model gateway.
	openaiClient := gateway.NewOpenAIClient(cfg, zapLogger)
	ollamaClient, err := gateway.NewOllamaClient(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create Ollama client", zap.Error(err))
	}
	chatGateway := gateway.NewRouter(openaiClient, ollamaClient)

	// Turn machinery.
	conversationComposer := composer.New(characterRepo, messageRepo, summaryRepo, memoryRepo, systemRepo, openaiClient, zapLogger)
	toolRegistry := tools.NewRegistry()
	turnOrchestrator := orchestrator.New(orchestrator.Config{
		Campaigns:    campaignRepo,
		Characters:   characterRepo,
		Messages:     messageRepo,
		Composer:     conversationComposer,
		Gateway:      chatGateway,
		Registry:     toolRegistry,
		Streams:      streamStore,
		Scheduler:    taskScheduler,
		Logger:       zapLogger,
		MaxSteps:     cfg.MaxTurnSteps,
		DefaultModel: cfg.DefaultTextModel,
		MemoryDelay:  cfg.MemoryExtractionDelay,
	})

	// Services.
	campaignService := service.NewCampaignService(campaignRepo, systemRepo, zapLogger,
		cfg.DefaultTextModel, cfg.DefaultImageModel)
	characterService := service.NewCharacterService(characterRepo, campaignRepo, taskScheduler, zapLogger)
	chatService := service.NewChatService(campaignRepo, characterRepo, messageRepo,
		mediaStore, openaiClient, taskScheduler, turnOrchestrator, zapLogger)
	memoryService := service.NewMemoryService(memoryRepo, openaiClient, zapLogger)
	summaryService := service.NewSummaryService(summaryRepo, campaignRepo, jobRepo, taskScheduler, zapLogger)
	jobService := service.NewJobService(jobRepo, zapLogger)
	systemService := service.NewGameSystemService(systemRepo, zapLogger)

	// Background workers.
	memoryExtractor := worker.NewMemoryExtractor(campaignRepo, messageRepo, memoryRepo,
		chatGateway, openaiClient, cfg.DefaultTextModel, zapLogger)
	imageWorker := worker.NewImageWorker(campaignRepo, characterRepo, messageRepo,
		mediaStore, openaiClient, cfg.DefaultImageModel, zapLogger)
	summarizer := worker.NewSummarizer(campaignRepo, characterRepo, messageRepo,
		summaryRepo, jobRepo, chatGateway, cfg.DefaultTextModel, zapLogger)

	consumer, err := scheduler.NewConsumer(rabbitConn, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create task consumer", zap.Error(err))
	}
	consumer.Register(scheduler.TaskRunTurn, turnOrchestrator.RunTurn)
	consumer.Register(scheduler.TaskExtractMemories, memoryExtractor.Handle)
	consumer.Register(scheduler.TaskGeneratePortrait, imageWorker.HandlePortrait)
	consumer.Register(scheduler.TaskGenerateSceneImage, imageWorker.HandleSceneImage)
	consumer.Register(scheduler.TaskSummarizeHistory, summarizer.Handle)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go func() {
		if err := consumer.Run(workerCtx); err != nil {
			zapLogger.Error("Task consumer stopped with error", zap.Error(err))
		}
	}()
	go func() {
		if err := consumer.RunDLQ(workerCtx, rabbitConn); err != nil {
			zapLogger.Error("DLQ consumer stopped with error", zap.Error(err))
		}
	}()

	// HTTP surface.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	ginprometheus.NewPrometheus("gamemaster").Use(router)

	httpHandler := handler.NewHandler(campaignService, characterService, chatService,
		memoryService, summaryService, jobService, systemService, streamStore, mediaStore, zapLogger)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		zapLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutdown signal received")

	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	zapLogger.Info("Server stopped")
}

func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func setupRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// connectRabbitMQ retries the broker connection; the broker routinely comes
// up after the server under docker compose.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	const maxRetries = 5
	const retryDelay = 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("RabbitMQ connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("maxAttempts", maxRetries),
			zap.Duration("retryDelay", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, err
}
