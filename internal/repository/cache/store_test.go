package cache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t testing.TB, bucket string) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"), logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db, bucket, logger.Noop())
}

func newRedisStore(t testing.TB) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, "test-"+uuid.NewString(), 0)
	t.Cleanup(func() { s.Clear(context.Background()) })
	return s
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		v, _, found, err := s.Get(ctx, "0/0/0")
		require.NoError(t, err)
		require.False(t, found)
		require.Nil(t, v)
	})

	t.Run("round trip", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		require.NoError(t, s.Set(ctx, "12/2200/1343", TileCacheValue("png-bytes")))

		v, e, found, err := s.Get(ctx, "12/2200/1343")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, TileCacheValue("png-bytes"), v)
		require.Equal(t, "12/2200/1343", e.Key)
		require.EqualValues(t, len("png-bytes"), e.Size)
		require.True(t, e.ModTime.After(before))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "12/2200/1343", TileCacheValue("newer")))
		v, _, _, err := s.Get(ctx, "12/2200/1343")
		require.NoError(t, err)
		require.Equal(t, TileCacheValue("newer"), v)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "N45W123", TileCacheValue("hgt")))

		entries, err := s.List(ctx)
		require.NoError(t, err)

		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key)
		}
		sort.Strings(keys)
		require.Equal(t, []string{"12/2200/1343", "N45W123"}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "N45W123"))
		require.NoError(t, s.Delete(ctx, "N45W123"))

		_, _, found, err := s.Get(ctx, "N45W123")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))

		entries, err := s.List(ctx)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("invalid key", func(t *testing.T) {
		require.ErrorIs(t, s.Set(ctx, "../escape", TileCacheValue("x")), ErrInvalidKey)
	})
}

func TestFilesystemStore(t *testing.T) {
	testStore(t, NewFilesystemStore(filepath.Join(t.TempDir(), "tiles"), "png"))
}

func TestSQLiteStore(t *testing.T) {
	testStore(t, newSQLiteStore(t, "raster"))
}

func TestRedisStore(t *testing.T) {
	testStore(t, newRedisStore(t))
}

func TestFilesystemStoreLayout(t *testing.T) {
	root := t.TempDir()
	s := NewFilesystemStore(root, ".png")

	require.NoError(t, s.Set(context.Background(), "3/4/5", TileCacheValue("x")))

	_, err := os.Stat(filepath.Join(root, "3", "4", "5.png"))
	require.NoError(t, err)
}

func TestFilesystemStoreListIgnoresForeignFiles(t *testing.T) {
	root := t.TempDir()
	s := NewFilesystemStore(root, "hgt")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "N45W123", TileCacheValue("x")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "N45W123.hgt.123.tmp"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0o644))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "N45W123", entries[0].Key)
}

func TestFilesystemStoreMissingRoot(t *testing.T) {
	s := NewFilesystemStore(filepath.Join(t.TempDir(), "never-created"), "png")
	ctx := context.Background()

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NoError(t, s.Clear(ctx))
}

func TestFilesystemStoreClearKeepsRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tiles")
	s := NewFilesystemStore(root, "png")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "1/0/0", TileCacheValue("x")))
	require.NoError(t, s.Clear(ctx))

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFilesystemStoreCanceledWriteLeavesNothing(t *testing.T) {
	root := t.TempDir()
	s := NewFilesystemStore(root, "png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Set(ctx, "2/1/1", TileCacheValue("x")), context.Canceled)

	files, err := os.ReadDir(filepath.Join(root, "2", "1"))
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestSQLiteStoreBucketsAreIsolated(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"), logger.Noop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	raster := NewSQLiteStore(db, "raster", logger.Noop())
	elevation := NewSQLiteStore(db, "elevation", logger.Noop())

	require.NoError(t, raster.Set(ctx, "1/1/1", TileCacheValue("r")))
	require.NoError(t, elevation.Set(ctx, "N00E000", TileCacheValue("e")))
	require.NoError(t, raster.Clear(ctx))

	entries, err := elevation.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestMemoryTiers(t *testing.T) {
	lruTier, err := NewMemory[string, int](2)
	require.NoError(t, err)
	mapTier, err := NewMemory[string, int](0)
	require.NoError(t, err)

	for name, m := range map[string]Memory[string, int]{"lru": lruTier, "map": mapTier} {
		t.Run(name, func(t *testing.T) {
			m.Store("a", 1)
			m.Store("b", 2)
			v, ok := m.Load("a")
			require.True(t, ok)
			require.Equal(t, 1, v)

			m.Delete("a")
			_, ok = m.Load("a")
			require.False(t, ok)

			m.Clear()
			require.Zero(t, m.Len())
		})
	}

	lruTier.Store("a", 1)
	lruTier.Store("b", 2)
	lruTier.Store("c", 3)
	require.Equal(t, 2, lruTier.Len())
	_, ok := lruTier.Load("a")
	require.False(t, ok, "least recently used entry is evicted")
}
