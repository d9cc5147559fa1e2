package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"jindalchat/internal/api"
	"jindalchat/internal/auth"
	"jindalchat/internal/config"
	"jindalchat/internal/identity"
	"jindalchat/internal/logger"
	"jindalchat/internal/metrics"
	"jindalchat/internal/redis"
	"jindalchat/internal/service/ai"
	"jindalchat/internal/service/assistant"
	"jindalchat/internal/service/chat"
	"jindalchat/internal/storage"
	"jindalchat/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("JINDALCHAT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	appLog, err := logger.New(cfg.BasicConfig.LogMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLog.Sync()

	if err := run(cfg, appLog); err != nil {
		appLog.Error("server exited", "error", err)
		_ = appLog.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLog *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.Info("opening database", "driver", cfg.Database.Driver)
	db, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	// Create necessary tables: users, messages
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		return err
	}

	var (
		rdb         *redis.Client
		revocations auth.RevocationStore
	)
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		revocations = auth.NewRedisRevocations(rdb)
	} else {
		appLog.Warn("redis not configured; sign out only clears cookies")
	}

	m := metrics.New()
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute, revocations)

	completer, err := ai.NewClient(ctx, cfg.Completion)
	if err != nil {
		return err
	}
	appLog.Info("completion client ready", "provider", cfg.Completion.Provider, "model", completer.Model())

	accounts := assistant.NewService(db)
	resolver := identity.NewResolver(accounts)

	scheduler, err := worker.New(ctx, cfg, rdb, appLog)
	if err != nil {
		return err
	}
	chatService := chat.NewService(accounts, resolver, completer, scheduler, m, appLog)
	// Jobs outlive the signal context so in-flight replies can still be stored.
	if err := scheduler.Start(context.WithoutCancel(ctx), chatService.Respond); err != nil {
		_ = scheduler.Close()
		return err
	}
	appLog.Info("scheduler started", "backend", scheduler.Backend())

	if cfg.BasicConfig.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := api.NewHandler(accounts, chatService, authService, m, appLog)
	router := api.NewRouter(handlers, cfg.BasicConfig.AllowedOrigins, appLog)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		_ = scheduler.Close()
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("http shutdown", "error", err)
	}
	if err := scheduler.Close(); err != nil {
		appLog.Warn("scheduler close", "error", err)
	}
	return nil
}
