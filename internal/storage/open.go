package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jwebster45206/enlisted/internal/config"
	"github.com/jwebster45206/enlisted/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// FromConfig opens the configured session backend. rdb is only used by the
// Redis backend and may be nil otherwise.
func FromConfig(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (storage.Storage, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		st, err := OpenSQLite(cfg.SQLitePath, cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using SQLite storage", "path", cfg.SQLitePath)
		return st, nil

	case config.BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis storage needs a redis client")
		}
		st := NewRedisStorage(rdb, cfg.DataDir, logger).WithTTL(cfg.SessionTTL)
		if err := st.WaitForConnection(ctx); err != nil {
			return nil, err
		}
		logger.Info("Using Redis storage", "ttl", cfg.SessionTTL)
		return st, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
