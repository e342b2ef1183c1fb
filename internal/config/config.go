package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	App         AppConfig
	Auth        AuthConfig
	Email       EmailConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Database    DatabaseConfig
	PayMaya     PayMayaConfig
	Storage     StorageConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AppConfig holds the public URLs used in confirmation emails and download links.
type AppConfig struct {
	Name        string
	URL         string
	FrontendURL string
	Timezone    string
}

type AuthConfig struct {
	JWTSecret  string
	OIDCIssuer string
}

type RedisConfig struct {
	Addr         string
	OrderLockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderCreated   string
	OrderPaid      string
	OrderFailed    string
	OrderCancelled string
	OrderStatus    string
}

// DatabaseConfig selects Postgres (migrated with golang-migrate) or a SQLite file whose
// schema is created from the models.
type DatabaseConfig struct {
	Driver        string
	SQLitePath    string
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	FromName     string
}

type PayMayaConfig struct {
	PublicKey     string
	SecretKey     string
	Environment   string
	WebhookSecret string
	Timeout       time.Duration
}

type StorageConfig struct {
	Root string
}

type IdempotencyConfig struct {
	NotificationTTL time.Duration
	SweepInterval   time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Template Store"),
			URL:         strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
			FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			Timezone:    getEnv("APP_TIMEZONE", "Asia/Manila"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromAddress:  getEnv("MAIL_FROM_ADDRESS", "no-reply@localhost"),
			FromName:     getEnv("MAIL_FROM_NAME", "Template Store"),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			OrderLockTTL: getEnvDuration("ORDER_LOCK_TTL", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:        strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			SQLitePath:    getEnv("SQLITE_PATH", "file:storefront.db?cache=shared"),
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderCreated:   getEnv("KAFKA_TOPIC_ORDER_CREATED", "storefront.order.created"),
				OrderPaid:      getEnv("KAFKA_TOPIC_ORDER_PAID", "storefront.order.paid"),
				OrderFailed:    getEnv("KAFKA_TOPIC_ORDER_FAILED", "storefront.order.failed"),
				OrderCancelled: getEnv("KAFKA_TOPIC_ORDER_CANCELLED", "storefront.order.cancelled"),
				OrderStatus:    getEnv("KAFKA_TOPIC_ORDER_STATUS", "storefront.order.status"),
			},
		},
		PayMaya: PayMayaConfig{
			PublicKey:     getEnv("PAYMAYA_PUBLIC_KEY", ""),
			SecretKey:     getEnv("PAYMAYA_SECRET_KEY", ""),
			Environment:   getEnv("PAYMAYA_ENVIRONMENT", "sandbox"),
			WebhookSecret: getEnv("PAYMAYA_WEBHOOK_SECRET", ""),
			Timeout:       getEnvDuration("PAYMAYA_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Root: getEnv("STORAGE_ROOT", "./storage/app"),
		},
		Idempotency: IdempotencyConfig{
			NotificationTTL: getEnvDuration("NOTIFICATION_DEDUP_TTL", 24*time.Hour),
			SweepInterval:   getEnvDuration("IDEMPOTENCY_SWEEP_INTERVAL", 5*time.Minute),
		},
	}
}

// AllTopics lists every topic the service publishes to.
func (k KafkaConfig) AllTopics() []string {
	return []string{
		k.Topics.OrderCreated,
		k.Topics.OrderPaid,
		k.Topics.OrderFailed,
		k.Topics.OrderCancelled,
		k.Topics.OrderStatus,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
