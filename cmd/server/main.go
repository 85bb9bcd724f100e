// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/parley/internal/cache"
	"github.com/jason-s-yu/parley/internal/chat"
	"github.com/jason-s-yu/parley/internal/config"
	"github.com/jason-s-yu/parley/internal/database"
	"github.com/jason-s-yu/parley/internal/handlers"
	"github.com/jason-s-yu/parley/internal/middleware"
	"github.com/jason-s-yu/parley/internal/storage"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(cfg.Level())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("mute store: %v", err)
	}
	defer closeStore()
	logger.Infof("mute lists stored in %s", cfg.MuteStore)

	reg := chat.NewRegistry(store, logger, chat.WithStoreTimeout(cfg.StoreTimeout))

	mux := http.NewServeMux()

	// chat websocket
	mux.Handle("/chat/ws", middleware.LogMiddleware(logger)(
		handlers.ChatWSHandler(logger, reg, cfg),
	))

	// room listing
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(
		handlers.ListRoomsHandler(logger, reg),
	))

	srv := &http.Server{Addr: cfg.Addr(), Handler: mux}
	go func() {
		logger.Infof("Running on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// hijacked websocket connections are not tracked by the server, so the
	// registry closes them itself
	reg.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
}

// openStore builds the mute store selected by cfg.MuteStore along with its cleanup.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (chat.MuteStore, func(), error) {
	switch cfg.MuteStore {
	case config.StoreBadger:
		db, err := storage.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewBadgerMuteStore(db, logger), func() { _ = db.Close() }, nil

	case config.StoreRedis:
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisMuteStore(rdb, cfg.RedisKeyPrefix, logger), func() { _ = rdb.Close() }, nil

	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return database.NewPostgresMuteStore(pool, logger), pool.Close, nil

	case config.StoreMemory:
		return chat.NewMemoryMuteStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown mute store %q", cfg.MuteStore)
}
