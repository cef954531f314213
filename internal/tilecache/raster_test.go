package tilecache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"
	"github.com/stretchr/testify/require"
)

type tileServer struct {
	*httptest.Server
	calls atomic.Int32
}

// newTileServer serves "/{z}/{x}/{y}.png"; status decides the response code
// per tile.
func newTileServer(t *testing.T, status func(c tilemath.Coordinate) int) *tileServer {
	t.Helper()
	ts := &tileServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		var c tilemath.Coordinate
		if _, err := fmt.Sscanf(r.URL.Path, "/%d/%d/%d.png", &c.Zoom, &c.X, &c.Y); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if code := status(c); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_, _ = w.Write([]byte("png:" + c.String()))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestRaster(t *testing.T, upstream string, dir string) *RasterSource {
	t.Helper()
	f, err := fetcher.New(fetcher.Config{
		Name:              "osm",
		Timeout:           5 * time.Second,
		UserAgent:         "milmap-test/1.0",
		MaxConcurrency:    2,
		MaxRetries:        1,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     2 * time.Millisecond,
	})
	require.NoError(t, err)

	s, err := NewRasterSource(RasterConfig{
		URLTemplate: upstream + "/{z}/{x}/{y}.png",
		Extension:   "png",
		Options:     Options{CacheDirectory: dir},
	}, f, nil, nil)
	require.NoError(t, err)
	return s
}

func allOK(tilemath.Coordinate) int { return http.StatusOK }

func TestRasterGetTilePersists(t *testing.T) {
	srv := newTileServer(t, allOK)
	dir := t.TempDir()
	s := newTestRaster(t, srv.URL, dir)

	c := tilemath.Coordinate{X: 2200, Y: 1343, Zoom: 12}
	tile, err := s.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, "png:12/2200/1343", string(tile.Data))
	require.Equal(t, c, tile.Coordinate())

	raw, err := os.ReadFile(filepath.Join(dir, "12", "2200", "1343.png"))
	require.NoError(t, err)
	require.Equal(t, tile.Data, raw)

	_, err = s.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.EqualValues(t, 1, srv.calls.Load())
}

func TestRasterGetTileAbsent(t *testing.T) {
	srv := newTileServer(t, func(tilemath.Coordinate) int { return http.StatusNotFound })
	dir := t.TempDir()
	s := newTestRaster(t, srv.URL, dir)

	tile, err := s.GetTile(context.Background(), tilemath.Coordinate{X: 0, Y: 0, Zoom: 1})
	require.NoError(t, err)
	require.Empty(t, tile.Data)

	_, err = os.Stat(filepath.Join(dir, "1", "0", "0.png"))
	require.True(t, os.IsNotExist(err))
}

func TestRasterGetTileRejectsInvalidCoordinate(t *testing.T) {
	srv := newTileServer(t, allOK)
	s := newTestRaster(t, srv.URL, t.TempDir())

	_, err := s.GetTile(context.Background(), tilemath.Coordinate{X: 4, Y: 0, Zoom: 2})
	require.ErrorIs(t, err, tilemath.ErrInvalidArgument)
	require.Zero(t, srv.calls.Load())
}

func TestRasterGetTilesPartialFailure(t *testing.T) {
	srv := newTileServer(t, func(c tilemath.Coordinate) int {
		if c.X%2 == 1 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})
	s := newTestRaster(t, srv.URL, t.TempDir())

	box := tilemath.BoundingBox{MinLat: -60, MaxLat: 60, MinLon: -170, MaxLon: 170}
	coords, err := tilemath.CalculateTileCoordinates(box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, 2)
	require.NoError(t, err)

	res, err := s.GetTiles(context.Background(), box, 2)
	require.NoError(t, err)
	require.Len(t, res.Tiles, len(coords)/2)
	require.Len(t, res.Errors, len(coords)/2)

	seen := make(map[tilemath.Coordinate]bool)
	for _, tile := range res.Tiles {
		require.Zero(t, tile.X%2)
		require.NotEmpty(t, tile.Data)
		seen[tile.Coordinate()] = true
	}
	for _, e := range res.Errors {
		require.Equal(t, 1, e.X%2)
		require.NotEmpty(t, e.Message)
		c := tilemath.Coordinate{X: e.X, Y: e.Y, Zoom: e.Zoom}
		require.False(t, seen[c])
		seen[c] = true
	}
	require.Len(t, seen, len(coords))

	for i := 1; i < len(res.Tiles); i++ {
		prev, cur := res.Tiles[i-1], res.Tiles[i]
		require.True(t, prev.Y < cur.Y || (prev.Y == cur.Y && prev.X < cur.X))
	}
}

func TestRasterGetTilesAllFail(t *testing.T) {
	srv := newTileServer(t, func(tilemath.Coordinate) int { return http.StatusServiceUnavailable })
	s := newTestRaster(t, srv.URL, t.TempDir())

	box := tilemath.BoundingBox{MinLat: 10, MaxLat: 20, MinLon: 10, MaxLon: 20}
	coords, err := tilemath.CalculateTileCoordinates(box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, 4)
	require.NoError(t, err)

	res, err := s.GetTiles(context.Background(), box, 4)
	require.ErrorIs(t, err, ErrNoTiles)
	require.Empty(t, res.Tiles)
	require.Len(t, res.Errors, len(coords))

	// MaxRetries = 1: two attempts per coordinate.
	require.EqualValues(t, 2*len(coords), srv.calls.Load())
}

func TestRasterGetTilesAbsentCountsAsSuccess(t *testing.T) {
	srv := newTileServer(t, func(tilemath.Coordinate) int { return http.StatusNotFound })
	s := newTestRaster(t, srv.URL, t.TempDir())

	res, err := s.GetTiles(context.Background(), tilemath.BoundingBox{MinLat: 1, MaxLat: 2, MinLon: 1, MaxLon: 2}, 0)
	require.NoError(t, err)
	require.Len(t, res.Tiles, 1)
	require.Empty(t, res.Tiles[0].Data)
	require.Empty(t, res.Errors)
}

func TestRasterGetTilesCanceled(t *testing.T) {
	srv := newTileServer(t, allOK)
	s := newTestRaster(t, srv.URL, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetTiles(ctx, tilemath.BoundingBox{MinLat: 10, MaxLat: 20, MinLon: 10, MaxLon: 20}, 6)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRasterGetTilesInvalidBox(t *testing.T) {
	srv := newTileServer(t, allOK)
	s := newTestRaster(t, srv.URL, t.TempDir())

	_, err := s.GetTiles(context.Background(), tilemath.BoundingBox{MinLat: 20, MaxLat: 10, MinLon: 0, MaxLon: 1}, 5)
	require.ErrorIs(t, err, tilemath.ErrInvalidArgument)
}

func TestRasterTileURLSubdomains(t *testing.T) {
	f, err := fetcher.New(fetcher.Config{
		Name: "osm", Timeout: time.Second, UserAgent: "ua", MaxConcurrency: 1,
	})
	require.NoError(t, err)
	s, err := NewRasterSource(RasterConfig{
		URLTemplate: "https://{s}.tile.example.org/{z}/{x}/{y}.png",
		Options:     Options{CacheDirectory: t.TempDir()},
	}, f, nil, nil)
	require.NoError(t, err)

	c := tilemath.Coordinate{X: 1, Y: 2, Zoom: 3}
	seen := make(map[string]bool)
	for range 3 {
		seen[s.TileURL(c)] = true
	}
	require.Equal(t, map[string]bool{
		"https://a.tile.example.org/3/1/2.png": true,
		"https://b.tile.example.org/3/1/2.png": true,
		"https://c.tile.example.org/3/1/2.png": true,
	}, seen)
}
