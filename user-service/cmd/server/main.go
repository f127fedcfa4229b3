package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedLogger "chat-server/shared/logger"
	sharedMessaging "chat-server/shared/messaging"
	"chat-server/shared/metrics"
	"chat-server/shared/opsserver"
	"chat-server/user-service/internal/config"
	"chat-server/user-service/internal/messaging"
	"chat-server/user-service/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используются переменные окружения")
	}

	// --- Загрузка конфигурации ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// --- Инициализация логгера ---
	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		Service:  cfg.ServiceName,
	})
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// --- Метрики ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry, cfg.ServiceName)

	// --- Хранилище пользователей ---
	lookup, closeStore, err := setupUserStore(cfg.Store, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к хранилищу пользователей", zap.Error(err))
	}
	defer closeStore()

	// --- Подключение к RabbitMQ ---
	connManager := sharedMessaging.NewConnectionManager(sharedMessaging.ConnectionConfig{
		URI:         cfg.RabbitMQ.URI,
		Queues:      []string{cfg.RabbitMQ.RequestQueue, cfg.RabbitMQ.ResponseQueue},
		Prefetch:    cfg.RabbitMQ.Prefetch,
		Reconnect:   cfg.RabbitMQ.Reconnect,
		MaxInterval: cfg.RabbitMQ.ReconnectMaxInterval,
	}, nil, logger, appMetrics)
	if err := connManager.Start(); err != nil {
		logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer connManager.Stop()

	rpcServer := messaging.NewRPCServer(lookup, connManager, appMetrics, messaging.RPCServerConfig{
		RequestQueue:  cfg.RabbitMQ.RequestQueue,
		ResponseQueue: cfg.RabbitMQ.ResponseQueue,
		LookupTimeout: cfg.LookupTimeout,
	}, logger)
	consumer := sharedMessaging.NewConsumer(connManager, logger, cfg.RabbitMQ.RequestQueue, cfg.ServiceName, cfg.RabbitMQ.Prefetch, rpcServer)

	// --- Служебный HTTP сервер ---
	opsSrv := opsserver.New(cfg.HealthCheckPort, cfg.ServiceName, connManager, registry, logger)
	opsSrv.Start()

	consumerErrChan := make(chan error, 1)
	go func() {
		consumerErrChan <- consumer.Start()
	}()

	logger.Info("user-service запущен", zap.String("request_queue", cfg.RabbitMQ.RequestQueue))
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Получен сигнал завершения, начинаем остановку...", zap.String("signal", sig.String()))
	case err := <-consumerErrChan:
		logger.Error("Консьюмер завершился, инициируем остановку", zap.Error(err))
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Ошибка при остановке служебного HTTP сервера", zap.Error(err))
	}

	consumer.Stop()
	select {
	case <-consumerErrChan:
	case <-ctxShutdown.Done():
		logger.Warn("Консьюмер не остановился вовремя")
	}
	logger.Info("user-service остановлен")
}

// setupUserStore открывает выбранное хранилище и возвращает функцию его закрытия.
func setupUserStore(cfg config.StoreConfig, logger *zap.Logger) (repository.UserLookup, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Backend {
	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongo ping: %w", err)
		}
		logger.Info("Подключено к MongoDB", zap.String("database", cfg.MongoDatabase))
		coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("Ошибка отключения от MongoDB", zap.Error(err))
			}
		}
		return repository.NewMongoUserRepository(coll, logger), closeFn, nil
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		logger.Info("Подключено к PostgreSQL")
		if cfg.MigrateOnStart {
			if err := repository.ApplyMigrations(pool, logger); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repository.NewPgUserRepository(pool, logger), pool.Close, nil
	}
}
