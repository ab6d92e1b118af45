package main

import (
	"anonchat/backend/internal/alert"
	"anonchat/backend/internal/api/handler"
	"anonchat/backend/internal/auth"
	"anonchat/backend/internal/chathub"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/logging"
	"anonchat/backend/internal/messaging"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/moderation"
	"anonchat/backend/internal/storage"
	"anonchat/backend/internal/telemetry"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupDependencies(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Error("Failed to connect PostgreSQL", "err", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("Failed to get sql.DB", "err", err)
		os.Exit(1)
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	// 2. Міграції
	if err := storage.Migrate(db); err != nil {
		log.Error("Failed to run migrations", "err", err)
		os.Exit(1)
	}

	// 3. Redis is optional: without it profiles are read from the database and
	// failed chat summaries wait for `admin reconcile`.
	if cfg.Redis.Addr == "" {
		log.Warn("REDIS_ADDR is empty, running without Redis")
		return db, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("Failed to connect Redis, running without it", "addr", cfg.Redis.Addr, "err", err)
		rdb.Close()
		return db, nil
	}

	log.Info("Database and Redis connections established, migrations complete")
	return db, rdb
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file loaded", "err", err)
	}
	cfg := config.Load()
	log := logging.New(cfg)
	log.Info("Starting anonchat backend...", "addr", cfg.Service.Addr)

	if cfg.Auth.Secret == "" {
		log.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(ctx, cfg)
	if err != nil {
		log.Error("Failed to init tracing", "err", err)
		os.Exit(1)
	}

	// 1. Ініціалізація залежностей
	db, rdb := setupDependencies(ctx, cfg, log)
	s := storage.NewStorageService(db, rdb)
	s.ProfileTTL = cfg.Redis.ProfileTTL

	if n, err := s.ResetPresence(ctx, time.Now().UTC()); err != nil {
		log.Error("Failed to reset presence", "err", err)
	} else if n > 0 {
		log.Info("Cleared stale presence", "users", n)
	}

	metrics.MustRegister()
	notifier := alert.New(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID, log)

	// 2. Realtime core
	registry := chathub.NewRegistry(log)
	presence := chathub.NewPresenceTracker(registry, s, log)
	engine := messaging.NewEngine(s, registry, moderation.NewFilter(), notifier, log)
	authn := auth.NewService(s, cfg.Auth.Secret, cfg.Auth.TokenTTL)
	gateway := chathub.NewGateway(registry, presence, engine, authn, log, chathub.GatewayOptions{
		AuthTimeout: cfg.Realtime.AuthTimeout,
		SendBuffer:  cfg.Realtime.SendBuffer,
	})

	// 3. Background reconciliation of chat summaries
	reconcileCtx, cancelReconcile := context.WithCancel(ctx)
	reconciler := messaging.NewReconciler(s, log, cfg.Realtime.ReconcileInterval)
	if rdb != nil {
		go reconciler.Run(reconcileCtx)
	}

	// 4. Налаштування Gin та роутингу
	r := gin.Default()
	r.Use(metrics.Middleware())
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	handler.NewHandler(s, engine, authn, gateway, registry, log).Register(r)

	// WriteTimeout stays zero: hijacked websocket connections manage their own
	// deadlines.
	server := &http.Server{
		Addr:              cfg.Service.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "err", err)
	}
	gateway.Shutdown()
	cancelReconcile()

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("Tracer shutdown failed", "err", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("Stopped")
}
