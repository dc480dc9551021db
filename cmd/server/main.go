package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otpmail/backend/internal/config"
	"otpmail/backend/internal/generator"
	"otpmail/backend/internal/health"
	"otpmail/backend/internal/logger"
	"otpmail/backend/internal/monitoring"
	"otpmail/backend/internal/pool"
	"otpmail/backend/internal/service"
	"otpmail/backend/internal/storage"
	"otpmail/backend/internal/storage/memory"
	"otpmail/backend/internal/storage/redis"
	sqlstore "otpmail/backend/internal/storage/sql"
	httptransport "otpmail/backend/internal/transport/http"
	"otpmail/backend/internal/websocket"
)

// main 启动 HTTP API 与 WebSocket 推送服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting otpmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = initializeDatabaseStorage(cfg)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 可选的 Redis 事件中继（多实例部署时共享新邮件事件）
	var relay *redis.PubSub
	if cfg.Redis.Enabled {
		relay, err = redis.NewPubSub(redis.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to Redis relay: %v", err))
		}
		defer relay.Close()
	}

	// 初始化健康检查
	var relayPinger health.Pinger
	if relay != nil {
		relayPinger = relay
	}
	healthChecker := health.NewHealthChecker(store, relayPinger, log)

	// 重试投递使用的协程池
	workers := pool.NewWorkerPool(8, 256)

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(
		cfg.CORS.AllowedOrigins,
		workers,
		cfg.Broadcast.RetryAttempts,
		cfg.Broadcast.RetryInterval,
		log,
	)
	wsHub.SetMetrics(metrics)

	// 初始化服务层
	gen := generator.New(cfg.Generator.ConsumerDomain)
	addressService := service.NewAddressService(store, gen)
	messageService := service.NewMessageService(store, store)

	// 启用中继时事件先发布到 Redis，再由订阅回路送进本地 Hub；
	// 未启用时直接投递本地 Hub
	var notifier service.Notifier = wsHub
	if relay != nil {
		notifier = relay
	}
	simulatorService := service.NewSimulatorService(store, gen, notifier, log)

	// 订阅即收信的演示行为
	if cfg.Broadcast.SimulateOnSubscribe {
		wsHub.SetSubscribeHook(func(address string) {
			go simulatorService.SimulateBoth(address)
		})
	}

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:           cfg,
		AddressService:   addressService,
		MessageService:   messageService,
		SimulatorService: simulatorService,
		WebSocketHub:     wsHub,
		HealthChecker:    healthChecker,
		Metrics:          metrics,
		Logger:           log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// Redis 中继订阅 goroutine：把其他实例发布的事件送进本地 Hub
	if relay != nil {
		group.Go(func() error {
			log.Info("starting Redis event relay")
			err := relay.Run(groupCtx, wsHub.NotifyNewMessage)
			if err != nil && groupCtx.Err() == nil {
				log.Error("Redis relay error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		workers.Stop()
		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeDatabaseStorage 根据配置选择数据库方言并初始化存储
func initializeDatabaseStorage(cfg *config.Config) (storage.Store, error) {
	pool := sqlstore.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	switch cfg.Database.Type {
	case "postgres":
		return sqlstore.NewStore(cfg.Database.DSN, pool)
	case "mysql":
		return sqlstore.NewMySQLStore(cfg.Database.DSN, pool)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}
