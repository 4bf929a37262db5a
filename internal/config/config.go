// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Драйверы хранилища коллекции учётных записей.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageMemory   = "memory"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	Ledger          `yaml:"ledger"`
	RabbitMQ        `yaml:"rabbitmq"`
	SMTP            `yaml:"smtp"`
	Billing         `yaml:"billing"`
	Scheduler       `yaml:"scheduler"`
}

// Storage выбирает и настраивает хранилище коллекции.
type Storage struct {
	Driver                  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"file"`
	FilePath                string `yaml:"file_path" env:"STORAGE_FILE_PATH" env-default:"./data/accounts.json"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	CollectionName          string `yaml:"collection_name" env:"STORAGE_COLLECTION" env-default:"accounts"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// Ограничение частоты запросов к открытым маршрутам авторизации с одного IP.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env-default:"1"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env-default:"5"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Ledger параметры пробного периода, кодов и критической секции хранилища.
type Ledger struct {
	TrialDays        int           `yaml:"trial_days" env-default:"7"`
	TrialRenders     int           `yaml:"trial_renders" env-default:"15"`
	VerificationTTL  time.Duration `yaml:"verification_ttl" env-default:"24h"`
	ResetTTL         time.Duration `yaml:"reset_ttl" env-default:"15m"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env-default:"5s"`
}

// RabbitMQ настройки подключения к брокеру уведомлений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// SMTP настройки почтового сервера для сервиса рассылки.
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"pass" env:"SMTP_PASS"`
}

// Billing настройки приёма webhook-ов платёжного провайдера.
type Billing struct {
	WebhookSecret string `yaml:"webhook_secret" env:"BILLING_WEBHOOK_SECRET"`
}

// Scheduler настройки фоновой рассылки напоминаний об окончании пробного периода.
type Scheduler struct {
	SchedulerEnabled bool          `yaml:"enabled" env-default:"true"`
	Spec             string        `yaml:"spec" env-default:"@every 1h"`
	ReminderWindow   time.Duration `yaml:"reminder_window" env-default:"24h"`
}

// Load читает конфиг из файла path. Перед чтением подгружается .env, если он есть.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Driver {
	case StorageFile:
		if c.FilePath == "" {
			return errors.New("storage.file_path is required for file driver")
		}
	case StoragePostgres:
		if c.StorageConnectionString == "" {
			return errors.New("storage.storage_connection_string is required for postgres driver")
		}
	case StorageRedis:
		if c.AddressRedis == "" {
			return errors.New("redis_connection.addressredis is required for redis driver")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}

// TrialDuration возвращает длительность пробного периода.
func (l Ledger) TrialDuration() time.Duration {
	return time.Duration(l.TrialDays) * 24 * time.Hour
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  FilePath: %s\n"+
			"  ConnectionString: %s\n"+
			"  Collection: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n"+
			"Ledger:\n"+
			"  TrialDays: %d\n"+
			"  TrialRenders: %d\n"+
			"  OperationTimeout: %s\n"+
			"RabbitMQ: %s\n"+
			"SMTP: %s:%s\n"+
			"Scheduler: %t %s\n",
		c.Env,
		c.Driver,
		c.FilePath,
		mask(c.StorageConnectionString),
		c.CollectionName,
		c.AddressRedis,
		mask(c.RedisConnection.Password),
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		mask(c.JWTSecretKey),
		c.TokenTTL,
		c.TrialDays,
		c.TrialRenders,
		c.OperationTimeout,
		mask(c.RabbitMQURL),
		c.SMTPHost,
		c.SMTPPort,
		c.SchedulerEnabled,
		c.Spec,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
