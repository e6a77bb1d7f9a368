// Command finishgames force-finishes every open or active game as a
// draw, without touching ratings. Meant for maintenance windows.
package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kr1s01/cfuv-chess/internal/obslog"
	"github.com/kr1s01/cfuv-chess/internal/store"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer logger.Sync() //nolint:errcheck

	st, err := openStore()
	if err != nil {
		logger.Fatal("store init error", zap.Error(err))
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := st.ForceFinishOpen(ctx)
	if err != nil {
		logger.Fatal("force finish error", zap.Error(err))
	}
	logger.Info("force_finish_done", zap.Int("finished", n))
}

func openStore() (store.Store, error) {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		return store.NewPostgres(dsn)
	}
	if u := strings.TrimSpace(os.Getenv("REDIS_URL")); u != "" {
		return store.NewRedis(u)
	}
	return store.NewMemory(), nil
}
