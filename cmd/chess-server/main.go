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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kr1s01/cfuv-chess/internal/auth"
	appcfg "github.com/kr1s01/cfuv-chess/internal/config"
	"github.com/kr1s01/cfuv-chess/internal/game"
	"github.com/kr1s01/cfuv-chess/internal/httpserver"
	"github.com/kr1s01/cfuv-chess/internal/hub"
	"github.com/kr1s01/cfuv-chess/internal/obslog"
	"github.com/kr1s01/cfuv-chess/internal/rules"
	"github.com/kr1s01/cfuv-chess/internal/store"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer logger.Sync() //nolint:errcheck

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("store init error", zap.Error(err))
	}
	defer st.Close()

	h := hub.New(logger)
	games := game.NewService(st, rules.NewStandard(), h, logger)
	au := auth.New(st, cfg.JWTSecret, cfg.TokenTTL, logger)
	srv := httpserver.New(games, au, st, h, logger, httpserver.Options{
		ListLimit:      cfg.ListLimit,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_start", zap.String("addr", cfg.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("server_shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// openStore picks the backend from configuration: Postgres first, then
// Redis, and an in-process store as the dev fallback.
func openStore(cfg *appcfg.AppConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		st, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx, st); err != nil {
			st.Close()
			return nil, err
		}
		logger.Info("store_select", zap.String("backend", "postgres"))
		return st, nil
	}
	if cfg.RedisURL != "" {
		st, err := store.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("store_select", zap.String("backend", "redis"))
		return st, nil
	}
	logger.Warn("store_select", zap.String("backend", "memory"),
		zap.String("note", "state is lost on restart"))
	return store.NewMemory(), nil
}
