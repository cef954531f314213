// Package cache holds the storage tiers behind the tile caches: persistent
// stores (filesystem, sqlite, redis) and in-process memory maps.
package cache

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

type TileCacheValue []byte

// Entry describes one persisted payload. ModTime and Size drive eviction.
type Entry struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is a persistent tier. Keys are slash-separated relative names such as
// "12/2200/1343" or "N45W123".
type Store interface {
	// Get returns found == false with a nil error when key is not stored.
	Get(ctx context.Context, key string) (TileCacheValue, Entry, bool, error)
	// Set replaces the payload atomically and stamps it with the current time.
	Set(ctx context.Context, key string, v TileCacheValue) error
	// Delete succeeds when key is already gone.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
}

var ErrInvalidKey = errors.New("invalid cache key")

func validateKey(key string) error {
	if key == "" || !fs.ValidPath(key) {
		return ErrInvalidKey
	}
	return nil
}
