package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-server/notification-service/internal/config"
	"chat-server/notification-service/internal/messaging"
	"chat-server/notification-service/internal/service"
	sharedLogger "chat-server/shared/logger"
	sharedMessaging "chat-server/shared/messaging"
	"chat-server/shared/metrics"
	"chat-server/shared/opsserver"
	"chat-server/shared/presence"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
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

	// --- Присутствие ---
	presenceStore, closePresence, err := setupPresence(cfg.Presence, logger)
	if err != nil {
		logger.Fatal("Не удалось инициализировать хранилище присутствия", zap.Error(err))
	}
	defer closePresence()

	// --- Провайдеры доставки ---
	pushProvider, err := setupPushProvider(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка инициализации push провайдера", zap.Error(err))
	}
	var emailProvider service.EmailProvider = service.NewStubEmailSender(logger)
	if smtpSender := service.NewSMTPSender(cfg.SMTP, logger); smtpSender != nil {
		emailProvider = smtpSender
	} else {
		logger.Warn("SMTP не настроен, используется заглушка email")
	}

	// --- Подключение к RabbitMQ ---
	connManager := sharedMessaging.NewConnectionManager(sharedMessaging.ConnectionConfig{
		URI:         cfg.RabbitMQ.URI,
		Queues:      []string{cfg.RabbitMQ.NotificationsQueue, cfg.RabbitMQ.PresenceQueue},
		Prefetch:    cfg.RabbitMQ.Prefetch,
		Reconnect:   cfg.RabbitMQ.Reconnect,
		MaxInterval: cfg.RabbitMQ.ReconnectMaxInterval,
	}, nil, logger, appMetrics)
	if err := connManager.Start(); err != nil {
		logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer connManager.Stop()

	dispatcher := service.NewDispatcher(presenceStore, pushProvider, emailProvider, cfg.DeliveryTimeout, logger)
	processor := messaging.NewProcessor(dispatcher, appMetrics, cfg.RabbitMQ.NotificationsQueue, logger)
	updater := messaging.NewPresenceUpdater(presenceStore, appMetrics, cfg.RabbitMQ.PresenceQueue, logger)

	consumers := []*sharedMessaging.Consumer{
		sharedMessaging.NewConsumer(connManager, logger, cfg.RabbitMQ.NotificationsQueue, cfg.ServiceName, cfg.RabbitMQ.Prefetch, processor),
		sharedMessaging.NewConsumer(connManager, logger, cfg.RabbitMQ.PresenceQueue, cfg.ServiceName+"-presence", 1, updater),
	}

	// --- Служебный HTTP сервер ---
	opsSrv := opsserver.New(cfg.HealthCheckPort, cfg.ServiceName, connManager, registry, logger)
	opsSrv.Start()

	consumerErrChan := make(chan error, len(consumers))
	for _, c := range consumers {
		go func(c *sharedMessaging.Consumer) {
			consumerErrChan <- c.Start()
		}(c)
	}

	logger.Info("notification-service запущен",
		zap.String("notifications_queue", cfg.RabbitMQ.NotificationsQueue),
		zap.String("presence_backend", cfg.Presence.Backend),
		zap.String("push_provider", cfg.PushProvider),
	)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	stopped := 0
	select {
	case sig := <-quit:
		logger.Info("Получен сигнал завершения, начинаем остановку...", zap.String("signal", sig.String()))
	case err := <-consumerErrChan:
		stopped++
		logger.Error("Консьюмер завершился, инициируем остановку", zap.Error(err))
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Ошибка при остановке служебного HTTP сервера", zap.Error(err))
	}

	for _, c := range consumers {
		c.Stop()
	}
	for ; stopped < len(consumers); stopped++ {
		select {
		case <-consumerErrChan:
		case <-ctxShutdown.Done():
			logger.Warn("Консьюмеры не остановились вовремя")
			stopped = len(consumers)
		}
	}
	logger.Info("notification-service остановлен")
}

// setupPresence возвращает хранилище присутствия и функцию его закрытия.
func setupPresence(cfg config.PresenceConfig, logger *zap.Logger) (presence.Store, func(), error) {
	if cfg.Backend != config.PresenceRedis {
		logger.Info("Присутствие хранится в памяти процесса")
		return presence.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(presence.RedisOptions(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Подключено к Redis", zap.String("addr", cfg.RedisAddr))
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("Ошибка закрытия клиента Redis", zap.Error(err))
		}
	}
	return presence.NewRedisStore(client, cfg.TTL, logger), closeFn, nil
}

// setupPushProvider выбирает push провайдера. Ненастроенный провайдер заменяется заглушкой.
func setupPushProvider(cfg *config.Config, logger *zap.Logger) (service.PushProvider, error) {
	switch cfg.PushProvider {
	case config.PushFCM:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sender, err := service.NewFCMSender(ctx, cfg.FCM, logger)
		if err != nil {
			return nil, err
		}
		if sender != nil {
			return sender, nil
		}
	case config.PushAPNS:
		sender, err := service.NewAPNSSender(cfg.APNS, logger)
		if err != nil {
			return nil, err
		}
		if sender != nil {
			return sender, nil
		}
	}
	logger.Warn("Push провайдер не настроен, используется заглушка", zap.String("provider", cfg.PushProvider))
	return service.NewStubPushSender(logger), nil
}
