package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	BackendFilesystem = "filesystem"
	BackendSQLite     = "sqlite"
	BackendRedis      = "redis"
)

type BackendConfig struct {
	Kind       string
	Dir        string
	SQLitePath string
	Redis      RedisConfig
}

// Backend owns the connections shared by every bucket's Store.
type Backend struct {
	cfg    BackendConfig
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func OpenBackend(ctx context.Context, cfg BackendConfig, l logger.Logger) (*Backend, error) {
	b := &Backend{cfg: cfg, logger: l}

	switch cfg.Kind {
	case BackendFilesystem, "":
		b.cfg.Kind = BackendFilesystem
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "tiles.db")
		}
		db, err := OpenSQLite(ctx, path, l)
		if err != nil {
			return nil, err
		}
		b.db = db
	case BackendRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.redis = client
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Kind)
	}

	l.Info("cache backend opened", "kind", b.cfg.Kind, "dir", cfg.Dir)
	return b, nil
}

func (b *Backend) Kind() string {
	return b.cfg.Kind
}

// Store returns the persistent tier for one bucket. Filesystem buckets live in
// {dir}/{bucket} and use ext as the file extension.
func (b *Backend) Store(bucket, ext string) Store {
	switch b.cfg.Kind {
	case BackendSQLite:
		return NewSQLiteStore(b.db, bucket, b.logger)
	case BackendRedis:
		return NewRedisStore(b.redis, bucket, b.cfg.Redis.TTL)
	default:
		return NewFilesystemStore(filepath.Join(b.cfg.Dir, bucket), ext)
	}
}

func (b *Backend) Close() error {
	var errs []error
	if b.db != nil {
		errs = append(errs, b.db.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	return errors.Join(errs...)
}
