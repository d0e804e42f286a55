package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storefront/internal/account"
	"storefront/internal/app"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/queue"
	"storefront/internal/router"
	"storefront/pkg/kv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 存储后端
	keys := kv.NewKeys(cfg.KeyPrefix)
	backend, err := openBackend(ctx, cfg, keys, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	// 2. 商品目录
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.LoadFile(cfg.CatalogPath); err != nil {
			return err
		}
	}
	logger.Info("catalog loaded", zap.Int("products", cat.Len()))

	// 3. 组装店铺并初始化默认数据
	s := app.New(backend.store, cat, app.Options{
		Keys:    keys,
		Pricing: &cart.Pricing{ShippingFee: cfg.ShippingFee, FreeShippingThreshold: cfg.FreeShippingThreshold},
		Hasher:  account.BcryptHasher{Cost: cfg.BcryptCost},
		Logger:  logger,
	})
	defer s.Close()
	if err := s.Init(ctx); err != nil {
		return err
	}

	// 4. 订单事件：有 redis 时先入 outbox 再由 relay 转 Kafka，否则直接投递
	var wg sync.WaitGroup
	if cfg.KafkaEnabled() {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
		defer producer.Close()

		var outbox *queue.Outbox
		if backend.rdb != nil {
			outbox = queue.NewOutbox(backend.rdb, cfg.OrderEventStream)
			relay := queue.NewRelay(backend.rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer, logger)
			wg.Go(func() { relay.Run(ctx) })
		}
		cancel := s.Orders.OnPlaced(queue.NewForwarder(outbox, producer, logger).Handle)
		defer cancel()

		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaStatusTopic, cfg.KafkaGroupID, s.Orders, logger)
		defer consumer.Close()
		wg.Go(func() { consumer.Run(ctx) })
		logger.Info("kafka enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	// 5. HTTP
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.AccessLog(logger), gin.Recovery())
	router.Setup(r, s, backend.rdb, cfg, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	// 先停后台 goroutine，再由 defer 关闭 store 与 redis client。
	stop()
	wg.Wait()
	if serveErr != nil {
		return serveErr
	}
	logger.Info("server exited gracefully")
	return nil
}

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Env != "production" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}
