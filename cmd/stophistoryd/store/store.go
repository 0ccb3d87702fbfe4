// Package store provides storage backend initialization for stophistoryd.
//
// It acts as a factory for storage.Store implementations based on the service
// configuration:
//
//   - Memory: in-process storage (default) for development and single-node
//     testing. Data is lost on restart and not shared between instances.
//
//   - Redis: shared Redis storage for production. Required whenever more than
//     one process appends events, since the conditional-write concurrency
//     control only protects writers that share a store.
//
// Initialization is fail-fast: connectivity is verified during startup and
// the process exits immediately if the backend is unavailable.
package store

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/transitwatch/stophistory/cmd/stophistoryd/config"
	"github.com/transitwatch/stophistory/pkg/storage"
)

// New creates and verifies a storage backend from the configuration.
// Never returns nil; calls os.Exit(1) on initialization failure.
func New(cfg *config.Config, logger *slog.Logger) storage.Store {
	switch cfg.Storage {
	case "redis":
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
		)
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("failed to create redis store", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			logger.Error("redis health check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("redis storage initialized successfully")

		return redisStore

	case "memory":
		logger.Info("initializing in-memory storage")
		return storage.NewMemoryStore()

	default:
		logger.Error("invalid storage type", "storage", cfg.Storage)
		os.Exit(1)
	}

	return nil
}
