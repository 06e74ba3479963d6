package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/cache"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/config"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/database"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/ingest"
	applogger "github.com/nnminh-sam/trip-sync-microservices-sub001/internal/logger"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/observability"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/optimizer"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/repository"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/stream"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := applogger.NewLogger(cfg.Log.Level, cfg.Log.Format, "tracking-ingestor")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting tracking-ingestor service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("topic_root", cfg.Stream.TopicRoot),
	)

	// PostgreSQL
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// 组装摄取管道
	repo := repository.NewPostgresGPSPointRepository(db)
	lastPointCache := cache.NewRedisLastPointCache(redisClient)
	optimizerService := optimizer.NewService(repo, lastPointCache, logger)
	retryExec := ingest.NewRetryExecutor(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, logger)
	pipeline := ingest.NewPipeline(repo, lastPointCache, optimizerService, retryExec, logger)
	dispatcher := ingest.NewDispatcher(pipeline, logger)

	// 指标服务
	go observability.StartMetricsServer(cfg.MetricsPort)

	// 流连接管理器
	broker := stream.NewPahoBrokerClient(&cfg.MQTT)
	manager := stream.NewManager(broker, dispatcher, stream.ManagerOptions{
		TopicRoot:            cfg.Stream.TopicRoot,
		QoS:                  cfg.MQTT.QoS,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		BaseReconnectDelay:   cfg.Stream.BaseReconnectDelay,
		ListenerRetryDelay:   cfg.Stream.ListenerRetryDelay,
	}, logger)

	if err := manager.Start(ctx); err != nil {
		logger.Fatal("Failed to start stream manager", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭：先停流监听，再停管道
	manager.Stop()
	pipeline.Shutdown()
	cancel()

	logger.Info("Service stopped")
}
