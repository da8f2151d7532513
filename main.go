package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nqd2/bluemoon-admin-gateway/internal/gate"
	"github.com/nqd2/bluemoon-admin-gateway/internal/handler"
	"github.com/nqd2/bluemoon-admin-gateway/internal/identity"
	"github.com/nqd2/bluemoon-admin-gateway/internal/middleware"
	"github.com/nqd2/bluemoon-admin-gateway/internal/proxy"
	"github.com/nqd2/bluemoon-admin-gateway/internal/session"
	"github.com/nqd2/bluemoon-admin-gateway/pkg/config"
	"github.com/nqd2/bluemoon-admin-gateway/pkg/logger"
	pkgredis "github.com/nqd2/bluemoon-admin-gateway/pkg/redis"
	"github.com/nqd2/bluemoon-admin-gateway/pkg/telemetry"
)

func main() {
	// Load configuration. A missing session secret fails here, before the
	// server accepts a single request.
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.App.Debug {
		logLevel = "debug"
	}
	logCfg := &logger.Config{
		Level:       logLevel,
		ServiceName: "bluemoon-admin-gateway",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Bluemoon admin gateway...")

	ctx := context.Background()

	// Initialize OpenTelemetry
	telemetryCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}
	if _, err := telemetry.Init(ctx, telemetryCfg); err != nil {
		log.Warn(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	} else if telemetryCfg.Enabled {
		log.Info(fmt.Sprintf("Telemetry initialized (collector: %s)", telemetryCfg.CollectorAddr))
	}
	defer telemetry.Shutdown(ctx)

	// Redis is optional: it backs the distributed login limiter and the
	// readiness probe
	var redis *pkgredis.Client
	if cfg.Redis.Enabled {
		redisCfg := &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
		}
		redis, err = pkgredis.NewClient(ctx, redisCfg)
		if err != nil {
			log.Warn("Redis connection failed, login limiter stays local")
		} else {
			defer redis.Close()
			log.Info("Redis connected")
		}
	}

	// Session codec and role-expiry policy
	policy := session.NewPolicy(cfg.Session.AdminTTL, cfg.Session.DefaultTTL)
	codec := session.NewCodec(cfg.Session.Secret, policy)
	cookie := session.CookieConfig{
		Name:   cfg.Session.CookieName,
		MaxAge: policy.MaxDuration(),
		Secure: cfg.IsProduction(),
	}

	// Credential authenticator against the condo backend
	authn := identity.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	// Backend passthrough proxy
	backendProxy, err := proxy.New(proxy.Config{
		BackendURL:     cfg.Backend.BaseURL,
		DefaultTimeout: 30 * time.Second,
		Routes:         proxy.DefaultRoutes(),
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to configure backend proxy: %v", err))
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS())

	// The edge gate runs on every request: decode cookie, decide, act
	router.Use(gate.Middleware(codec, cookie, gate.DefaultRules(), log))

	// Health check handlers
	healthHandler := handler.NewHealthHandler(backendProxy, redis)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Auth surface
	authHandler := handler.NewAuthHandler(authn, codec, cookie)

	loginLimiterCfg := middleware.DefaultLoginLimiterConfig()
	if redis != nil {
		loginLimiterCfg.Redis = redis
		log.Info("Login rate limiting enabled (Redis-backed, distributed)")
	} else {
		log.Info("Login rate limiting enabled (local)")
	}

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(loginLimiterCfg), authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", authHandler.Me)
	}

	// Everything else under /api is passthrough to the condo backend
	router.NoRoute(backendProxy.Handler())

	log.Info(fmt.Sprintf("Proxy configured: backend=%s", cfg.Backend.BaseURL))

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info(fmt.Sprintf("Admin gateway listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("Server exited gracefully")
}
