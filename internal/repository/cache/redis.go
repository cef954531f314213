package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires entries on the server side as well; zero leaves eviction to
	// cache cleanup.
	TTL time.Duration
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps each payload in a hash {data, size, mtime} under
// "tile:{bucket}:{key}".
type RedisStore struct {
	client *redis.Client
	bucket string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, bucket string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		bucket: bucket,
		ttl:    ttl,
	}
}

func (c *RedisStore) prefix() string {
	return "tile:" + c.bucket + ":"
}

func (c *RedisStore) keyFor(key string) string {
	return c.prefix() + key
}

func (c *RedisStore) Get(ctx context.Context, key string) (TileCacheValue, Entry, bool, error) {
	vals, err := c.client.HMGet(ctx, c.keyFor(key), "data", "mtime").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, Entry{}, false, nil
		}
		return nil, Entry{}, false, fmt.Errorf("redis get error: %w", err)
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, Entry{}, false, nil
	}

	return TileCacheValue(data), Entry{
		Key:     key,
		Size:    int64(len(data)),
		ModTime: parseUnixNano(vals[1]),
	}, true, nil
}

func (c *RedisStore) Set(ctx context.Context, key string, v TileCacheValue) error {
	if err := validateKey(key); err != nil {
		return err
	}

	k := c.keyFor(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"data", []byte(v),
			"size", len(v),
			"mtime", time.Now().UnixNano(),
		)
		if c.ttl > 0 {
			pipe.Expire(ctx, k, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (c *RedisStore) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyFor(key)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (c *RedisStore) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	iter := c.client.Scan(ctx, 0, c.prefix()+"*", 1000).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		vals, err := c.client.HMGet(ctx, k, "size", "mtime").Result()
		if err != nil {
			return nil, fmt.Errorf("redis list error: %w", err)
		}
		if vals[0] == nil {
			continue
		}

		size, _ := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
		entries = append(entries, Entry{
			Key:     strings.TrimPrefix(k, c.prefix()),
			Size:    size,
			ModTime: parseUnixNano(vals[1]),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis list error: %w", err)
	}

	return entries, nil
}

func (c *RedisStore) Clear(ctx context.Context) error {
	var batch []string

	iter := c.client.Scan(ctx, 0, c.prefix()+"*", 1000).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear error: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis clear error: %w", err)
	}

	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear error: %w", err)
		}
	}
	return nil
}

func parseUnixNano(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
