package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/pkg/config"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, upstream string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("CACHE_DIR", dir)
	t.Setenv("CACHE_BACKEND", "filesystem")
	t.Setenv("RASTER_URL_TEMPLATE", upstream+"/{z}/{x}/{y}.png")
	t.Setenv("RASTER_FETCH_MIN_REQUEST_INTERVAL", "0s")
	t.Setenv("ELEVATION_URL_TEMPLATE", upstream+"/skadi/{lat_band}/{name}.hgt.gz")
	t.Setenv("OVERPASS_URL", upstream+"/api/interpreter")

	cfg, err := config.New()
	require.NoError(t, err)
	return cfg
}

func TestNewComponentsServesAndPersistsTiles(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/3/1/2.png" {
			_, _ = w.Write([]byte("tile"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	c, err := NewComponents(context.Background(), cfg, logger.Noop())
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	data, found, err := c.UseCase.GetTile(context.Background(), 3, 1, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("tile"), data)

	stored, err := os.ReadFile(filepath.Join(cfg.Cache.Dir, rasterSourceName, "3", "1", "2.png"))
	require.NoError(t, err)
	require.Equal(t, []byte("tile"), stored)

	// Elevation ocean tile: absent, not an error.
	_, ok, err := c.UseCase.GetElevation(context.Background(), 30.5, -40.5, false)
	require.NoError(t, err)
	require.False(t, ok)

	stats, err := c.UseCase.CacheStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, rasterSourceName, stats[0].Name)
	require.EqualValues(t, 4, stats[0].SizeBytes)
}

func TestNewComponentsRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Cache.Backend = "tape"

	_, err := NewComponents(context.Background(), cfg, logger.Noop())
	require.ErrorContains(t, err, "unknown cache backend")
}

func TestRunCleanupLoopStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	c, err := NewComponents(context.Background(), cfg, logger.Noop())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runCleanupLoop(ctx, c.UseCase, 5*time.Millisecond, logger.Noop())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
