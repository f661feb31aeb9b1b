package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hitoshi/yieldvision/internal/config"
	"github.com/hitoshi/yieldvision/internal/database"
	"github.com/hitoshi/yieldvision/internal/handler"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// storageBackend はクライアントストレージの実装と、付随する接続リソース。
type storageBackend struct {
	repo    repository.StorageRepository
	checker handler.HealthChecker
	close   func() error
}

// openStorage はSTORAGE_BACKENDに応じたストレージを開く。
func openStorage(ctx context.Context, cfg *config.Config) (*storageBackend, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory, "":
		return &storageBackend{
			repo:  repository.NewMemoryStorageRepo(),
			close: func() error { return nil },
		}, nil

	case config.StoragePostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return &storageBackend{
			repo:    repository.NewPostgresStorageRepo(db),
			checker: db,
			close:   db.Close,
		}, nil

	case config.StorageRedis:
		rdb, err := repository.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return &storageBackend{
			repo: repository.NewRedisStorageRepo(rdb),
			checker: handler.HealthCheckFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
			close: rdb.Close,
		}, nil

	case config.StorageFile:
		repo, err := repository.NewFileStorageRepo(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		dir := cfg.StorageDir
		return &storageBackend{
			repo: repo,
			checker: handler.HealthCheckFunc(func(context.Context) error {
				_, err := os.Stat(dir)
				return err
			}),
			close: func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.StorageBackend)
	}
}
