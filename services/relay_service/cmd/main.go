package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EthanQC/relay/pkg/zlog"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/in/httpapi"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/in/ws"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/auth"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/memory"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/metrics"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/mq"
	redisStore "github.com/EthanQC/relay/services/relay_service/internal/adapters/out/redis"
	"github.com/EthanQC/relay/services/relay_service/internal/adapters/out/room"
	"github.com/EthanQC/relay/services/relay_service/internal/application"
	"github.com/EthanQC/relay/services/relay_service/internal/config"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 加载配置
	cfg, cfgFile, err := config.Load(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logCfg := zlog.DefaultConfig("relay-service")
	if cfgFile != "" {
		loaded, err := zlog.LoadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载日志配置失败: %v\n", err)
			os.Exit(1)
		}
		logCfg = *loaded
	}
	logCfg.Service = "relay-service"
	zlog.MustInitGlobal(logCfg)
	defer zap.L().Sync()

	logger := zap.L()
	logger.Info("relay_service starting", zap.String("env", env), zap.String("config", cfgFile))

	// 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	zlog.RegisterMetrics(reg)
	relayMetrics := metrics.NewRelayMetrics(reg)

	// 在线状态存储
	store, err := initStore(cfg)
	if err != nil {
		logger.Fatal("Failed to init presence store", zap.Error(err))
	}

	// 令牌校验
	verifier, closeVerifier, err := initVerifier(cfg)
	if err != nil {
		logger.Fatal("Failed to init token verifier", zap.Error(err))
	}

	// 状态变更事件
	publisher, err := initPublisher(cfg)
	if err != nil {
		logger.Fatal("Failed to init event publisher", zap.Error(err))
	}

	// 初始化用例层
	coordinator := application.NewSessionCoordinator(store, room.NewRouter(), publisher, relayMetrics)
	resolver := application.NewIdentityResolver(verifier, cfg.Auth.CookieName)

	wsServer := ws.NewServer(resolver, coordinator, ws.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendBuffer:     cfg.WS.SendBuffer,
		MaxMessageSize: cfg.WS.MaxMessageSize,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpapi.NewRouter(wsServer, reg),
	}

	go func() {
		logger.Info("Relay server starting", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	// 关闭所有连接，每个会话都会清掉自己的在线记录
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("WebSocket shutdown error", zap.Error(err))
	}
	coordinator.Drain()

	if err := publisher.Close(); err != nil {
		logger.Warn("Event publisher close error", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Warn("Presence store close error", zap.Error(err))
	}
	closeVerifier()

	logger.Info("Server exited properly")
}

func initStore(cfg *config.Config) (out.PresenceStore, error) {
	if cfg.Store.Driver == "memory" {
		zap.L().Warn("using in-memory presence store, records are not shared between instances")
		return memory.NewPresenceStoreMemory(), nil
	}

	client, err := initRedis(cfg.Redis)
	if err != nil {
		return nil, err
	}
	return redisStore.NewPresenceStoreRedis(client, cfg.Store.KeyPrefix, cfg.Store.TTL), nil
}

func initRedis(rc config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

func initVerifier(cfg *config.Config) (out.TokenVerifier, func(), error) {
	if cfg.Auth.Mode == "jwks" {
		// ctx 控制后台刷新协程的生命周期，由 Close 结束
		v, err := auth.NewJWKSVerifier(context.Background(), cfg.Auth.JWKSURL, cfg.Auth.Issuer)
		if err != nil {
			return nil, nil, err
		}
		return v, v.Close, nil
	}

	v, err := auth.NewHMACVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		return nil, nil, err
	}
	return v, func() {}, nil
}

func initPublisher(cfg *config.Config) (out.EventPublisher, error) {
	switch cfg.Events.Driver {
	case "kafka":
		return mq.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	case "nats":
		return mq.NewNATSEventPublisher(cfg.NATS.URL, cfg.NATS.Subject)
	default:
		return mq.NoopEventPublisher{}, nil
	}
}
