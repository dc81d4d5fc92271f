// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"authgate-service/internal/config"
	"authgate-service/internal/db"
	accountHandler "authgate-service/internal/handlers/account"
	authHandler "authgate-service/internal/handlers/auth"
	tabHandler "authgate-service/internal/handlers/tab"
	wsHandler "authgate-service/internal/handlers/websocket"
	"authgate-service/internal/middleware"
	"authgate-service/internal/pkg/ratelimit"
	"authgate-service/internal/provider"
	"authgate-service/internal/repository/postgres"
	authUsecase "authgate-service/internal/service/auth"
	"authgate-service/internal/service/records"
	"authgate-service/internal/tabs"
	"authgate-service/internal/websocket"
	wsHandlers "authgate-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	http     *http.Server
	pool     *pgxpool.Pool
	redis    *redis.Client
	writer   *records.Writer
	registry *tabs.Registry
	cancel   context.CancelFunc
}

func NewServer(logger *zap.Logger) *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine, logger: logger}
}

// Start wires the service and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// ----- Records (PostgreSQL or memory) -----
	if s.cfg.DatabaseURL != "" {
		pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		s.pool = pool
		s.writer = records.NewWriter(
			postgres.NewSessionRepository(pool),
			postgres.NewActivityRepository(pool),
			postgres.NewSecurityEventRepository(pool),
			records.Config{},
			s.logger,
		)
		s.logger.Info("records stored in PostgreSQL")
	} else {
		s.writer = records.NewMemoryWriter(s.logger)
		s.logger.Warn("DATABASE_URL not set, records kept in memory")
	}

	// ----- Redis -----
	if s.cfg.RedisAddr != "" {
		client, err := db.NewRedisClient(db.RedisConfig{
			Address:  s.cfg.RedisAddr,
			Password: s.cfg.RedisPass,
			PoolSize: 10,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.redis = client
		s.logger.Info("browser storage and tab sync on Redis", zap.String("addr", s.cfg.RedisAddr))
	} else {
		s.logger.Warn("REDIS_ADDR not set, browser storage kept in memory")
	}

	// ----- Provider -----
	httpClient := &http.Client{Timeout: s.cfg.Provider.Timeout}
	providerCfg := provider.Config{
		URL:       s.cfg.Provider.URL,
		AnonKey:   s.cfg.Provider.AnonKey,
		JWTSecret: s.cfg.Provider.JWTSecret,
		Timeout:   s.cfg.Provider.Timeout,
	}
	newClient := func(storage provider.Storage) provider.Client {
		return provider.NewGoTrueClient(providerCfg, httpClient, storage, s.logger)
	}

	// ----- WebSocket Hub & Tabs -----
	hub := websocket.NewHub(s.logger)
	s.registry = tabs.NewRegistry(tabs.Config{
		Machine: authUsecase.Config{
			SiteURL:           s.cfg.SiteURL,
			HeartbeatInterval: s.cfg.HeartbeatInterval,
			Limiter: ratelimit.Config{
				MaxAttempts: s.cfg.LoginMaxAttempts,
				Lockout:     s.cfg.LoginLockout,
			},
		},
		IdleTTL:     s.cfg.TabIdleTTL,
		StorageTTL:  s.cfg.TabStorageTTL,
		SyncChannel: s.cfg.SyncChannel,
	}, newClient, s.writer, s.redis, hub, s.logger)

	hub.OnDisconnect(s.registry.Close)
	hub.RegisterHandler(wsHandlers.NewTabHandler(s.registry, s.logger))

	go hub.Run(ctx)
	go s.registry.Run(ctx)

	// ----- Handlers -----
	handlers := &Handlers{
		AuthHandler:    authHandler.NewAuthHandler(s.logger),
		AccountHandler: accountHandler.NewAccountHandler(s.writer, s.logger),
		TabHandler:     tabHandler.NewTabHandler(s.registry, s.logger),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.registry, s.cfg.AllowedOrigins, s.logger),
		TabMiddleware:  middleware.NewTabMiddleware(s.registry, s.cfg.SecureCookies()),
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	s.http = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests, closes every tab and flushes pending
// records before releasing the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.registry != nil {
		s.registry.Shutdown()
	}
	if s.writer != nil {
		s.writer.Close()
	}
	if s.redis != nil {
		err = errors.Join(err, s.redis.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
