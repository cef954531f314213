// Package tilecache resolves keyed payloads through a memory tier, a
// persistent store and finally a remote fetch, and maintains the store's
// age and size budget.
package tilecache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/JonathonClaypool/MilMap-sub001/internal/repository/cache"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/metrics"
	"github.com/goware/singleflight"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrCacheIO marks a local storage failure. It is never retried and
	// aborts the surrounding operation.
	ErrCacheIO = errors.New("cache i/o failure")
	// ErrNoTiles is returned with a batch result in which nothing succeeded.
	ErrNoTiles = errors.New("no tiles could be fetched")

	// errFlightAbandoned ends a fetch whose every waiter went away.
	errFlightAbandoned = errors.New("fetch abandoned by all callers")
)

// Key identifies a cached payload; String is both the memory key and the
// store key.
type Key interface {
	comparable
	String() string
}

type Options struct {
	// CacheDirectory backs the default filesystem store.
	CacheDirectory string
	// MaxTileAge is the age past which an entry is refreshed and cleanup
	// removes it. Zero means entries never expire.
	MaxTileAge time.Duration
	// MaxCacheSizeBytes is the store budget enforced by CleanupCache. Zero
	// disables the size phase.
	MaxCacheSizeBytes int64
	// UseStaleOnError serves an expired copy when its refresh fails.
	UseStaleOnError bool
	// MemoryEntries bounds the memory tier; zero keeps every entry.
	MemoryEntries int
}

// DecodeFunc parses a stored or fetched payload. An error means the payload is
// corrupt: it is discarded and never served.
type DecodeFunc[K Key, V any] func(key K, data []byte) (V, error)

// FetchFunc retrieves a payload from the remote source; found == false is a
// legitimate absence.
type FetchFunc[K Key] func(ctx context.Context, key K) (data []byte, found bool, err error)

type Config[K Key, V any] struct {
	// Name labels metrics and logs.
	Name string
	// Extension is used by the default filesystem store.
	Extension string
	Options   Options
	// Store overrides the filesystem store rooted at Options.CacheDirectory.
	Store  cache.Store
	Decode DecodeFunc[K, V]
	Fetch  FetchFunc[K]
	Logger logger.Logger
	// Now replaces the wall clock.
	Now func() time.Time
}

type entry[V any] struct {
	value   V
	found   bool
	modTime time.Time
}

// Cache is safe for concurrent use. Concurrent misses for the same key share a
// single fetch.
type Cache[K Key, V any] struct {
	name   string
	opts   Options
	store  cache.Store
	memory cache.Memory[string, entry[V]]
	decode DecodeFunc[K, V]
	fetch  FetchFunc[K]
	flight singleflight.Group[string, entry[V]]
	logger logger.Logger
	now    func() time.Time
}

func New[K Key, V any](cfg Config[K, V]) (*Cache[K, V], error) {
	if cfg.Decode == nil || cfg.Fetch == nil {
		return nil, fmt.Errorf("cache %q: decode and fetch functions are required", cfg.Name)
	}

	store := cfg.Store
	if store == nil {
		if cfg.Options.CacheDirectory == "" {
			return nil, fmt.Errorf("cache %q: cache directory is required", cfg.Name)
		}
		store = cache.NewFilesystemStore(cfg.Options.CacheDirectory, cfg.Extension)
	}

	memory, err := cache.NewMemory[string, entry[V]](cfg.Options.MemoryEntries)
	if err != nil {
		return nil, err
	}

	l := cfg.Logger
	if l == nil {
		l = logger.Noop()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Cache[K, V]{
		name:   cfg.Name,
		opts:   cfg.Options,
		store:  store,
		memory: memory,
		decode: cfg.Decode,
		fetch:  cfg.Fetch,
		logger: l.With("cache", cfg.Name),
		now:    now,
	}, nil
}

func (c *Cache[K, V]) Name() string {
	return c.name
}

func (c *Cache[K, V]) Options() Options {
	return c.opts
}

// Get resolves key through memory, store and network in that order. It
// returns found == false with a nil error when the source has no payload for
// key. Remote failures wrap fetcher.ErrFetchFailed, local storage failures
// wrap ErrCacheIO and cancellation is returned as the context's error.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	metrics.TilesRequests.WithLabelValues(c.name).Inc()

	e, err := c.get(ctx, key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return e.value, e.found, nil
}

func (c *Cache[K, V]) get(ctx context.Context, key K) (entry[V], error) {
	skey := key.String()

	if e, ok := c.memory.Load(skey); ok && !c.expired(e.modTime) {
		metrics.TilesCacheHits.WithLabelValues(c.name, "memory").Inc()
		return e, nil
	}

	stale, ok, err := c.load(ctx, key)
	if err != nil {
		return entry[V]{}, err
	}
	if ok && !c.expired(stale.modTime) {
		metrics.TilesCacheHits.WithLabelValues(c.name, "disk").Inc()
		c.memory.Store(skey, stale)
		return stale, nil
	}

	metrics.TilesCacheMisses.WithLabelValues(c.name).Inc()

	for {
		res := <-c.flight.DoChanContext(ctx, skey, func(fctx context.Context) (entry[V], error) {
			if e, ok := c.memory.Load(skey); ok && !c.expired(e.modTime) {
				return e, nil
			}
			e, err := c.refresh(detach(fctx, ctx), key)
			if err != nil && fctx.Err() != nil {
				return e, errFlightAbandoned
			}
			return e, err
		})
		e, err := res.Val, res.Err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return entry[V]{}, ctxErr
		}

		// We joined a flight whose waiters had all gone; start a new one.
		if errors.Is(err, errFlightAbandoned) {
			continue
		}

		if err != nil && ok && c.opts.UseStaleOnError && errors.Is(err, fetcher.ErrFetchFailed) {
			metrics.TilesStaleServed.WithLabelValues(c.name).Inc()
			c.logger.Warn("serving stale entry after failed refresh", "key", skey, "age", c.now().Sub(stale.modTime), "error", err)
			c.memory.Store(skey, stale)
			return stale, nil
		}
		return e, err
	}
}

// detach carries the caller's span and logger into the flight context, which
// outlives any single caller.
func detach(flightCtx, callerCtx context.Context) context.Context {
	flightCtx = trace.ContextWithSpanContext(flightCtx, trace.SpanContextFromContext(callerCtx))
	return logger.WithLogger(flightCtx, logger.FromContext(callerCtx))
}

// load reads key from the store. Corrupt payloads are deleted and reported as
// missing.
func (c *Cache[K, V]) load(ctx context.Context, key K) (entry[V], bool, error) {
	skey := key.String()

	data, meta, found, err := c.store.Get(ctx, skey)
	if err != nil {
		if ctx.Err() != nil {
			return entry[V]{}, false, ctx.Err()
		}
		return entry[V]{}, false, fmt.Errorf("%w: read %s: %v", ErrCacheIO, skey, err)
	}
	if !found {
		return entry[V]{}, false, nil
	}

	v, err := c.decode(key, data)
	if err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", skey, "size", len(data), "error", err)
		if err := c.store.Delete(ctx, skey); err != nil {
			return entry[V]{}, false, fmt.Errorf("%w: delete %s: %v", ErrCacheIO, skey, err)
		}
		return entry[V]{}, false, nil
	}

	return entry[V]{value: v, found: true, modTime: meta.ModTime}, true, nil
}

// refresh fetches key from the network, persists a valid payload and
// populates memory.
func (c *Cache[K, V]) refresh(ctx context.Context, key K) (entry[V], error) {
	skey := key.String()

	data, found, err := c.fetch(ctx, key)
	if err != nil {
		return entry[V]{}, err
	}

	e := entry[V]{modTime: c.now()}
	if found {
		v, err := c.decode(key, data)
		if err != nil {
			c.logger.Warn("fetched payload is corrupt, treating as absent", "key", skey, "size", len(data), "error", err)
		} else {
			e.value, e.found = v, true
		}
	}

	if e.found {
		if err := c.store.Set(ctx, skey, data); err != nil {
			if ctx.Err() != nil {
				return entry[V]{}, ctx.Err()
			}
			return entry[V]{}, fmt.Errorf("%w: write %s: %v", ErrCacheIO, skey, err)
		}
	} else if err := c.store.Delete(ctx, skey); err != nil {
		// the source no longer has it; drop any expired copy we kept
		return entry[V]{}, fmt.Errorf("%w: delete %s: %v", ErrCacheIO, skey, err)
	}

	c.memory.Store(skey, e)
	return e, nil
}

func (c *Cache[K, V]) expired(modTime time.Time) bool {
	return c.opts.MaxTileAge > 0 && c.now().Sub(modTime) > c.opts.MaxTileAge
}

// GetCacheSizeBytes sums the sizes of all persisted payloads.
func (c *Cache[K, V]) GetCacheSizeBytes(ctx context.Context) (int64, error) {
	entries, err := c.list(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

// ClearCache drops every persisted payload and the whole memory tier.
func (c *Cache[K, V]) ClearCache(ctx context.Context) error {
	c.memory.Clear()
	if err := c.store.Clear(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: clear: %v", ErrCacheIO, err)
	}
	c.logger.Info("cache cleared")
	return nil
}

type CleanupReport struct {
	Scanned        int   `json:"scanned"`
	ExpiredRemoved int   `json:"expired_removed"`
	EvictedRemoved int   `json:"evicted_removed"`
	BytesFreed     int64 `json:"bytes_freed"`
	BytesRemaining int64 `json:"bytes_remaining"`
}

// CleanupCache first removes entries older than MaxTileAge, then, while the
// store exceeds MaxCacheSizeBytes, removes the oldest remaining entries.
// Memory entries of removed keys are invalidated.
func (c *Cache[K, V]) CleanupCache(ctx context.Context) (CleanupReport, error) {
	entries, err := c.list(ctx)
	if err != nil {
		return CleanupReport{}, err
	}

	report := CleanupReport{Scanned: len(entries)}
	remove := func(e cache.Entry, reason string) error {
		if err := c.store.Delete(ctx, e.Key); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: delete %s: %v", ErrCacheIO, e.Key, err)
		}
		c.memory.Delete(e.Key)
		metrics.TilesCacheEvictions.WithLabelValues(c.name, reason).Inc()
		report.BytesFreed += e.Size
		return nil
	}

	kept := entries[:0]
	var total int64
	for _, e := range entries {
		if c.expired(e.ModTime) {
			if err := remove(e, "age"); err != nil {
				return report, err
			}
			report.ExpiredRemoved++
			continue
		}
		kept = append(kept, e)
		total += e.Size
	}

	if c.opts.MaxCacheSizeBytes > 0 && total > c.opts.MaxCacheSizeBytes {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].ModTime.Before(kept[j].ModTime)
		})

		i := 0
		for ; i < len(kept) && total > c.opts.MaxCacheSizeBytes; i++ {
			if err := remove(kept[i], "size"); err != nil {
				report.BytesRemaining = total
				return report, err
			}
			total -= kept[i].Size
			report.EvictedRemoved++
		}
	}

	report.BytesRemaining = total
	metrics.TilesCacheSizeBytes.WithLabelValues(c.name).Set(float64(total))

	c.logger.Info("cache cleanup finished",
		"scanned", report.Scanned,
		"expired", report.ExpiredRemoved,
		"evicted", report.EvictedRemoved,
		"bytes_freed", report.BytesFreed,
		"bytes_remaining", report.BytesRemaining,
	)

	return report, nil
}

func (c *Cache[K, V]) list(ctx context.Context) ([]cache.Entry, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: list: %v", ErrCacheIO, err)
	}
	return entries, nil
}
