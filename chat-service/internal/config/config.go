package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	ServiceName string         `yaml:"service_name" env:"SERVICE_NAME" env-default:"chat-service"`
	RabbitMQ    RabbitMQConfig `yaml:"rabbitmq"`
	Log         LogConfig      `yaml:"log"`
	// Служебный сервер: /health, /metrics и внутренний маршрут уведомлений
	HTTPPort string `yaml:"http_port" env:"HTTP_PORT" env-default:"8087"`
	// Ожидание ответа на USER_DETAILS_REQUEST. По умолчанию 5s
	UserDetailsTimeout time.Duration `yaml:"user_details_timeout" env:"USER_DETAILS_TIMEOUT"`
}

type RabbitMQConfig struct {
	URI          string `yaml:"uri" env:"RABBITMQ_URI" env-required:"true"`
	RequestQueue string `yaml:"request_queue" env:"USER_DETAILS_REQUEST_QUEUE" env-default:"USER_DETAILS_REQUEST"`
	// Каждый инстанс читает ответы только из своей очереди, иначе чужие ответы теряются
	ResponseQueue        string        `yaml:"response_queue" env:"USER_DETAILS_RESPONSE_QUEUE" env-default:"USER_DETAILS_RESPONSE"`
	NotificationsQueue   string        `yaml:"notifications_queue" env:"NOTIFICATIONS_QUEUE" env-default:"notifications"`
	Prefetch             int           `yaml:"prefetch" env:"RABBITMQ_PREFETCH" env-default:"10"`
	Reconnect            bool          `yaml:"reconnect" env:"RABBITMQ_RECONNECT"` // По умолчанию true
	ReconnectMaxInterval time.Duration `yaml:"reconnect_max_interval" env:"RABBITMQ_RECONNECT_MAX_INTERVAL" env-default:"30s"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
}

// defaults задаются до чтения, чтобы false в config.yml не перетирался env-default.
func defaults() Config {
	return Config{
		RabbitMQ:           RabbitMQConfig{Reconnect: true},
		UserDetailsTimeout: 5 * time.Second,
	}
}

// LoadConfig читает CONFIG_PATH (по умолчанию config.yml), при ошибке - только переменные окружения.
func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}

	cfg := defaults()
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v. Попытка чтения из переменных окружения.", configPath, err)
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Конфигурация загружена. Запросы: %s, ответы: %s, уведомления: %s",
		cfg.RabbitMQ.RequestQueue, cfg.RabbitMQ.ResponseQueue, cfg.RabbitMQ.NotificationsQueue)
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.RabbitMQ.Prefetch <= 0 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be positive, got %d", c.RabbitMQ.Prefetch)
	}
	if c.UserDetailsTimeout <= 0 {
		return fmt.Errorf("USER_DETAILS_TIMEOUT must be positive, got %s", c.UserDetailsTimeout)
	}
	if c.RabbitMQ.RequestQueue == c.RabbitMQ.ResponseQueue {
		return fmt.Errorf("request and response queues must differ, both are '%s'", c.RabbitMQ.RequestQueue)
	}
	return nil
}
