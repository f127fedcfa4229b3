package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	PresenceMemory = "memory"
	PresenceRedis  = "redis"

	PushFCM  = "fcm"
	PushAPNS = "apns"
	PushStub = "stub"
)

type Config struct {
	ServiceName     string         `yaml:"service_name" env:"SERVICE_NAME" env-default:"notification-service"`
	RabbitMQ        RabbitMQConfig `yaml:"rabbitmq"`
	Presence        PresenceConfig `yaml:"presence"`
	PushProvider    string         `yaml:"push_provider" env:"PUSH_PROVIDER" env-default:"fcm"`
	FCM             FCMConfig      `yaml:"fcm"`
	APNS            APNSConfig     `yaml:"apns"`
	SMTP            SMTPConfig     `yaml:"smtp"`
	Log             LogConfig      `yaml:"log"`
	HealthCheckPort string         `yaml:"health_check_port" env:"HEALTH_CHECK_PORT" env-default:"8088"`
	// Ограничение на один вызов провайдера доставки, 0 - без ограничения. По умолчанию 30s
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"DELIVERY_TIMEOUT"`
}

type RabbitMQConfig struct {
	URI                  string        `yaml:"uri" env:"RABBITMQ_URI" env-required:"true"`
	NotificationsQueue   string        `yaml:"notifications_queue" env:"NOTIFICATIONS_QUEUE" env-default:"notifications"`
	PresenceQueue        string        `yaml:"presence_queue" env:"PRESENCE_QUEUE" env-default:"user_presence"`
	Prefetch             int           `yaml:"prefetch" env:"RABBITMQ_PREFETCH" env-default:"10"`
	Reconnect            bool          `yaml:"reconnect" env:"RABBITMQ_RECONNECT"` // По умолчанию true
	ReconnectMaxInterval time.Duration `yaml:"reconnect_max_interval" env:"RABBITMQ_RECONNECT_MAX_INTERVAL" env-default:"30s"`
}

type PresenceConfig struct {
	Backend       string        `yaml:"backend" env:"PRESENCE_BACKEND" env-default:"memory"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	TTL           time.Duration `yaml:"ttl" env:"PRESENCE_TTL" env-default:"0s"`
}

type FCMConfig struct {
	CredentialsPath string `yaml:"credentials_path" env:"FCM_CREDENTIALS_PATH"`
}

type APNSConfig struct {
	KeyID      string `yaml:"key_id" env:"APNS_KEY_ID"`
	TeamID     string `yaml:"team_id" env:"APNS_TEAM_ID"`
	KeyPath    string `yaml:"key_path" env:"APNS_KEY_PATH"`
	Topic      string `yaml:"topic" env:"APNS_TOPIC"`
	Production bool   `yaml:"production" env:"APNS_PRODUCTION" env-default:"false"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"no-reply@chat.local"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
}

// defaults - значения полей, для которых false или 0 допустимы в config.yml.
// cleanenv подставляет env-default поверх нулевого значения, поэтому они задаются до чтения.
func defaults() Config {
	return Config{
		RabbitMQ:        RabbitMQConfig{Reconnect: true},
		DeliveryTimeout: 30 * time.Second,
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

	log.Printf("Конфигурация загружена. Очередь уведомлений: %s, присутствие: %s, push: %s",
		cfg.RabbitMQ.NotificationsQueue, cfg.Presence.Backend, cfg.PushProvider)
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Presence.Backend {
	case PresenceMemory, PresenceRedis:
	default:
		return fmt.Errorf("unknown presence backend '%s'", c.Presence.Backend)
	}
	switch c.PushProvider {
	case PushFCM, PushAPNS, PushStub:
	default:
		return fmt.Errorf("unknown push provider '%s'", c.PushProvider)
	}
	if c.RabbitMQ.Prefetch <= 0 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be positive, got %d", c.RabbitMQ.Prefetch)
	}
	if c.DeliveryTimeout < 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must not be negative, got %s", c.DeliveryTimeout)
	}
	return nil
}
