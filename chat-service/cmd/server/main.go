package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-server/chat-service/internal/config"
	"chat-server/chat-service/internal/handler"
	"chat-server/chat-service/internal/service"
	sharedLogger "chat-server/shared/logger"
	sharedMessaging "chat-server/shared/messaging"
	"chat-server/shared/metrics"
	"chat-server/shared/opsserver"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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

	// --- Подключение к RabbitMQ ---
	connManager := sharedMessaging.NewConnectionManager(sharedMessaging.ConnectionConfig{
		URI:         cfg.RabbitMQ.URI,
		Queues:      []string{cfg.RabbitMQ.RequestQueue, cfg.RabbitMQ.ResponseQueue, cfg.RabbitMQ.NotificationsQueue},
		Prefetch:    cfg.RabbitMQ.Prefetch,
		Reconnect:   cfg.RabbitMQ.Reconnect,
		MaxInterval: cfg.RabbitMQ.ReconnectMaxInterval,
	}, nil, logger, appMetrics)
	if err := connManager.Start(); err != nil {
		logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer connManager.Stop()

	userDetails := sharedMessaging.NewUserDetailsClient(connManager, sharedMessaging.UserDetailsClientConfig{
		RequestQueue:  cfg.RabbitMQ.RequestQueue,
		ResponseQueue: cfg.RabbitMQ.ResponseQueue,
		Timeout:       cfg.UserDetailsTimeout,
	}, logger)
	publisher := sharedMessaging.NewNotificationPublisher(connManager, cfg.RabbitMQ.NotificationsQueue, logger)
	notifier := service.NewMessageNotifier(userDetails, publisher, appMetrics, logger)

	// Ответы user-service приходят в ResponseQueue и сопоставляются по correlation id
	responseConsumer := sharedMessaging.NewConsumer(connManager, logger, cfg.RabbitMQ.ResponseQueue, cfg.ServiceName+"-user-details", cfg.RabbitMQ.Prefetch, userDetails)

	// --- HTTP сервер: /health, /metrics и внутренний маршрут уведомлений ---
	router := opsserver.NewRouter(cfg.ServiceName, connManager, registry, logger)
	handler.NewNotifyHandler(notifier, logger).RegisterRoutes(router)
	httpSrv := opsserver.NewWithHandler(cfg.HTTPPort, router, logger)
	httpSrv.Start()

	consumerErrChan := make(chan error, 1)
	go func() {
		consumerErrChan <- responseConsumer.Start()
	}()

	logger.Info("chat-service запущен",
		zap.String("request_queue", cfg.RabbitMQ.RequestQueue),
		zap.String("response_queue", cfg.RabbitMQ.ResponseQueue),
		zap.String("notifications_queue", cfg.RabbitMQ.NotificationsQueue),
	)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	consumerDone := false
	select {
	case sig := <-quit:
		logger.Info("Получен сигнал завершения, начинаем остановку...", zap.String("signal", sig.String()))
	case err := <-consumerErrChan:
		consumerDone = true
		logger.Error("Консьюмер ответов завершился, инициируем остановку", zap.Error(err))
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Сначала HTTP: запросы в полете еще ждут ответы от консьюмера
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Ошибка при остановке HTTP сервера", zap.Error(err))
	}

	responseConsumer.Stop()
	if !consumerDone {
		select {
		case <-consumerErrChan:
		case <-ctxShutdown.Done():
			logger.Warn("Консьюмер ответов не остановился вовремя")
		}
	}
	logger.Info("chat-service остановлен")
}
