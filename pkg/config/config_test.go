package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.HTTP.Server.Port)
	require.Equal(t, "filesystem", cfg.Cache.Backend)
	require.Equal(t, "https://tile.openstreetmap.org/{z}/{x}/{y}.png", cfg.Raster.URLTemplate)
	require.Equal(t, 720*time.Hour, cfg.Raster.MaxTileAge)
	require.Equal(t, 2, cfg.Raster.Fetch.MaxConcurrency)
	require.NotEmpty(t, cfg.Elevation.Fetch.UserAgent)
	require.Equal(t, time.Duration(0), cfg.Elevation.MaxTileAge)
}

func TestNewFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CACHE_DIR", "/var/cache/milmap")
	t.Setenv("RASTER_FETCH_MAX_RETRIES", "7")
	t.Setenv("RASTER_FETCH_MIN_REQUEST_INTERVAL", "250ms")
	t.Setenv("ELEVATION_MEMORY_TILES", "4")
	t.Setenv("LOGGER_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, "/var/cache/milmap", cfg.Cache.Dir)
	require.Equal(t, 7, cfg.Raster.Fetch.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.Raster.Fetch.MinRequestInterval)
	require.Equal(t, 4, cfg.Elevation.MemoryTiles)
	require.Equal(t, "debug", cfg.Logger.Level)
}

func TestNewRejectsMalformedDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RASTER_MAX_TILE_AGE", "forever")

	_, err := New()
	require.Error(t, err)
}
