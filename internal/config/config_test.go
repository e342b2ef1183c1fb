package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYMAYA_ENVIRONMENT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "sandbox", cfg.PayMaya.Environment)
	assert.Equal(t, 10*time.Second, cfg.PayMaya.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.NotificationTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Len(t, cfg.Kafka.AllTopics(), 5)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_URL", "https://shop.example.com/")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ORDER_LOCK_TTL", "45s")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "https://shop.example.com", cfg.App.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 45*time.Second, cfg.Redis.OrderLockTTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}
