package storage

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/config"
)

const redisKeyPrefix = "supportbot:"

// Open builds the backend selected by cfg. The returned closer is a no-op for
// backends without resources to release.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, io.Closer, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return NewMemoryBackend(), nopCloser{}, nil
	case config.DriverFile:
		b, err := NewFileBackend(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", cfg.Path).Msg("storage: using file backend")
		return b, nopCloser{}, nil
	case config.DriverSQLite:
		b, err := NewSQLiteBackend(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.Path).Msg("storage: using sqlite backend")
		return b, b, nil
	case config.DriverRedis:
		b, err := NewRedisBackend(ctx, cfg.RedisAddr, cfg.RedisDB, redisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("storage: using redis backend")
		return b, b, nil
	default:
		return nil, nil, errors.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
