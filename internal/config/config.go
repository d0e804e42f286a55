package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// 存储后端
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	Env      string
	LogLevel string
	HTTPAddr string

	// 存储后端及其参数
	StoreBackend string
	DBPath       string
	DataFile     string
	RedisAddr    string
	RedisDB      int
	KeyPrefix    string

	// 为空时使用内置目录
	CatalogPath string

	// 运费规则
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal

	BcryptCost int

	// 登录接口限流（仅 redis 后端生效）
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Kafka 集群地址（逗号分隔），为空时不启用订单事件
	KafkaBrokers     []string
	KafkaOrderTopic  string
	KafkaStatusTopic string
	KafkaGroupID     string

	// Redis Stream outbox（下单后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string
}

// KafkaEnabled 是否配置了 Kafka。
func (c AppConfig) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Load 先加载 .env（不存在则忽略），再读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := AppConfig{
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
		DBPath:             getEnv("DB_PATH", "storefront.db"),
		DataFile:           getEnv("DATA_FILE", "storefront.json"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		KeyPrefix:          getEnv("KEY_PREFIX", "techhouse"),
		CatalogPath:        getEnv("CATALOG_PATH", ""),
		BcryptCost:         10,
		LoginRateLimit:     5,
		LoginRateWindow:    time.Minute,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaOrderTopic:    getEnv("KAFKA_ORDER_TOPIC", "storefront-orders"),
		KafkaStatusTopic:   getEnv("KAFKA_STATUS_TOPIC", "storefront-order-status"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "storefront-status-consumer"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "techhouse:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "storefront-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "storefront-relay-1"),
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
	default:
		return AppConfig{}, fmt.Errorf("STORE_BACKEND must be one of memory, file, sqlite, redis (got %q)", cfg.StoreBackend)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	if cfg.ShippingFee, err = getEnvDecimal("SHIPPING_FEE", decimal.NewFromInt(15)); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHIPPING_FEE: %w", err)
	}
	if cfg.FreeShippingThreshold, err = getEnvDecimal("FREE_SHIPPING_THRESHOLD", decimal.NewFromInt(299)); err != nil {
		return AppConfig{}, fmt.Errorf("invalid FREE_SHIPPING_THRESHOLD: %w", err)
	}
	if cfg.ShippingFee.IsNegative() || cfg.FreeShippingThreshold.IsNegative() {
		return AppConfig{}, fmt.Errorf("SHIPPING_FEE and FREE_SHIPPING_THRESHOLD must be >= 0")
	}

	cost, err := getEnvInt("BCRYPT_COST", cfg.BcryptCost)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	if cost < 4 || cost > 31 {
		return AppConfig{}, fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	cfg.BcryptCost = cost

	rateLimit, err := getEnvInt("LOGIN_RATE_LIMIT", cfg.LoginRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("LOGIN_RATE_LIMIT must be > 0")
	}
	cfg.LoginRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("LOGIN_RATE_WINDOW_SEC", int(cfg.LoginRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOGIN_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("LOGIN_RATE_WINDOW_SEC must be > 0")
	}
	cfg.LoginRateWindow = time.Duration(rateWindowSec) * time.Second

	if cfg.KeyPrefix == "" {
		return AppConfig{}, fmt.Errorf("KEY_PREFIX must not be empty")
	}
	if cfg.KafkaEnabled() {
		if cfg.KafkaOrderTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_ORDER_TOPIC must not be empty")
		}
		if cfg.KafkaStatusTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_STATUS_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
	}
	if cfg.OrderEventStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
	}
	if cfg.OrderEventGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
	}
	if cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvDecimal 读取金额，若为空则返回默认值。
func getEnvDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return decimal.NewFromString(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
