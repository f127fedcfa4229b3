package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	ServiceName     string         `yaml:"service_name" env:"SERVICE_NAME" env-default:"user-service"`
	RabbitMQ        RabbitMQConfig `yaml:"rabbitmq"`
	Store           StoreConfig    `yaml:"store"`
	Log             LogConfig      `yaml:"log"`
	HealthCheckPort string         `yaml:"health_check_port" env:"HEALTH_CHECK_PORT" env-default:"8089"`
	// Ограничение на один поиск пользователя в хранилище, 0 - без ограничения. По умолчанию 5s
	LookupTimeout time.Duration `yaml:"lookup_timeout" env:"LOOKUP_TIMEOUT"`
}

type RabbitMQConfig struct {
	URI                  string        `yaml:"uri" env:"RABBITMQ_URI" env-required:"true"`
	RequestQueue         string        `yaml:"request_queue" env:"USER_DETAILS_REQUEST_QUEUE" env-default:"USER_DETAILS_REQUEST"`
	ResponseQueue        string        `yaml:"response_queue" env:"USER_DETAILS_RESPONSE_QUEUE" env-default:"USER_DETAILS_RESPONSE"`
	Prefetch             int           `yaml:"prefetch" env:"RABBITMQ_PREFETCH" env-default:"10"`
	Reconnect            bool          `yaml:"reconnect" env:"RABBITMQ_RECONNECT"` // По умолчанию true
	ReconnectMaxInterval time.Duration `yaml:"reconnect_max_interval" env:"RABBITMQ_RECONNECT_MAX_INTERVAL" env-default:"30s"`
}

type StoreConfig struct {
	Backend         string `yaml:"backend" env:"USER_STORE" env-default:"postgres"`
	PostgresDSN     string `yaml:"postgres_dsn" env:"DATABASE_URL"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"MIGRATE_ON_START"` // По умолчанию true
	MongoURI        string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase   string `yaml:"mongo_database" env:"MONGO_DATABASE" env-default:"chat"`
	MongoCollection string `yaml:"mongo_collection" env:"MONGO_USERS_COLLECTION" env-default:"users"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
}

// defaults - значения полей, для которых false или 0 допустимы в config.yml.
// cleanenv подставляет env-default поверх нулевого значения, поэтому они задаются до чтения.
func defaults() Config {
	return Config{
		RabbitMQ:      RabbitMQConfig{Reconnect: true},
		Store:         StoreConfig{MigrateOnStart: true},
		LookupTimeout: 5 * time.Second,
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

	log.Printf("Конфигурация загружена. Хранилище: %s, очередь запросов: %s", cfg.Store.Backend, cfg.RabbitMQ.RequestQueue)
	return &cfg, nil
}

// Validate проверяет согласованность выбранного хранилища и его параметров.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for store backend '%s'", c.Store.Backend)
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for store backend '%s'", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend '%s'", c.Store.Backend)
	}
	if c.RabbitMQ.Prefetch <= 0 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be positive, got %d", c.RabbitMQ.Prefetch)
	}
	return nil
}
