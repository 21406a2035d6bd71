package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intercom-platform/internal/apns"
	"intercom-platform/internal/audit"
	"intercom-platform/internal/callhistory"
	"intercom-platform/internal/config"
	"intercom-platform/internal/expopush"
	"intercom-platform/internal/httpapi"
	"intercom-platform/internal/invite"
	"intercom-platform/pkg/logger"
	"intercom-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// The native VoIP path is optional; missing credentials fall back to the
	// gateway for every device.
	var voip expopush.VoipSender
	if cfg.APNs.Enabled() {
		key, err := cfg.APNs.KeyMaterial()
		if err != nil {
			log.Error("apns key load failed", "err", err)
			os.Exit(1)
		}
		client, err := apns.New(apns.Config{
			KeyID:       cfg.APNs.KeyID,
			TeamID:      cfg.APNs.TeamID,
			Topic:       cfg.APNs.Topic,
			PrivateKey:  key,
			Environment: cfg.APNs.Environment,
		})
		if err != nil {
			log.Error("apns init failed", "err", err)
			os.Exit(1)
		}
		voip = client
		log.Info("apns voip push enabled", "topic", cfg.APNs.Topic, "environment", cfg.APNs.Environment)
	} else {
		log.Warn("apns voip push disabled, gateway fallback only")
	}

	gateway := expopush.New(expopush.Options{
		GatewayURL: cfg.Push.GatewayURL,
		Voip:       voip,
		Disabled:   !cfg.Push.Enabled,
	})

	auditSvc := audit.NewService(audit.NewMemoryRepo())
	orchestrator := invite.New(gateway, invite.NewRedisGuard(rdb), auditSvc, log)
	history := callhistory.NewService(callhistory.NewPostgresRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{
		Invites: orchestrator,
		History: history,
	}, db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
