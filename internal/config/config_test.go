package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendFile, cfg.StoreBackend)
	assert.Equal(t, "techhouse", cfg.KeyPrefix)
	assert.True(t, cfg.ShippingFee.Equal(decimal.NewFromInt(15)))
	assert.True(t, cfg.FreeShippingThreshold.Equal(decimal.NewFromInt(299)))
	assert.Equal(t, time.Minute, cfg.LoginRateWindow)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("SHIPPING_FEE", "9.99")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("LOGIN_RATE_WINDOW_SEC", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "9.99", cfg.ShippingFee.StringFixed(2))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 30*time.Second, cfg.LoginRateWindow)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"STORE_BACKEND":    "mongo",
		"REDIS_DB":         "x",
		"SHIPPING_FEE":     "-1",
		"BCRYPT_COST":      "2",
		"LOGIN_RATE_LIMIT": "0",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(key, val)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}
