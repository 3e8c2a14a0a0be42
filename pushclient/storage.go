package pushclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tinywideclouds/go-crowdship-push/internal/storage/cache"
	"github.com/tinywideclouds/go-crowdship-push/internal/storage/local"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/pushclient/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewTokenStore builds the token store for the configured storage driver. The
// returned closer releases the backend connection.
func NewTokenStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (push.TokenStore, io.Closer, error) {
	var (
		kv     local.KeyValue
		closer io.Closer = nopCloser{}
	)

	switch cfg.Driver {
	case config.StorageFile:
		fileKV, err := local.NewFileKV(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		kv = fileKV
	case config.StorageRedis:
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		kv, closer = redisClient, redisClient
	case config.StorageMemory, "":
		kv = local.NewMemoryKV()
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	logger.Info("Token store initialized", "driver", cfg.Driver)
	return local.NewKeyValueTokenStore(kv, logger), closer, nil
}
