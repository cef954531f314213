package tilecache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/JonathonClaypool/MilMap-sub001/internal/repository/cache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/sourcegraph/conc/pool"
)

// TileData is an immutable tile payload. Empty Data means the source has no
// tile at this coordinate.
type TileData struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Zoom int    `json:"z"`
	Data []byte `json:"-"`
}

func (t TileData) Coordinate() tilemath.Coordinate {
	return tilemath.Coordinate{X: t.X, Y: t.Y, Zoom: t.Zoom}
}

type TileFetchError struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Zoom    int    `json:"z"`
	Message string `json:"message"`
}

// TileFetchResult partitions a batch: every requested coordinate is in
// exactly one of the two lists.
type TileFetchResult struct {
	Tiles  []TileData       `json:"tiles"`
	Errors []TileFetchError `json:"errors"`
}

type RasterConfig struct {
	// URLTemplate accepts {z}, {x}, {y} and {s} (rotating a, b, c).
	URLTemplate string
	Extension   string
	Options     Options
}

// RasterSource is the tile cache of one raster tile server.
type RasterSource struct {
	cache       *Cache[tilemath.Coordinate, []byte]
	fetcher     *fetcher.Fetcher
	urlTemplate string
	subdomain   atomic.Uint32
	logger      logger.Logger
}

// NewRasterSource builds a raster cache on f. A nil store selects the
// filesystem store under cfg.Options.CacheDirectory.
func NewRasterSource(cfg RasterConfig, f *fetcher.Fetcher, store cache.Store, l logger.Logger) (*RasterSource, error) {
	if cfg.URLTemplate == "" {
		return nil, errors.New("raster url template is required")
	}
	if cfg.Extension == "" {
		cfg.Extension = "png"
	}
	if l == nil {
		l = logger.Noop()
	}

	s := &RasterSource{
		fetcher:     f,
		urlTemplate: cfg.URLTemplate,
		logger:      l.With("source", f.Name()),
	}

	c, err := New(Config[tilemath.Coordinate, []byte]{
		Name:      f.Name(),
		Extension: cfg.Extension,
		Options:   cfg.Options,
		Store:     store,
		Decode:    decodeRaster,
		Fetch:     s.fetchTile,
		Logger:    l,
	})
	if err != nil {
		return nil, err
	}
	s.cache = c

	return s, nil
}

func decodeRaster(_ tilemath.Coordinate, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty tile payload")
	}
	return data, nil
}

func (s *RasterSource) fetchTile(ctx context.Context, c tilemath.Coordinate) ([]byte, bool, error) {
	return s.fetcher.Fetch(ctx, s.TileURL(c))
}

// TileURL expands the URL template for c.
func (s *RasterSource) TileURL(c tilemath.Coordinate) string {
	sub := string("abc"[s.subdomain.Add(1)%3])
	return strings.NewReplacer(
		"{z}", strconv.Itoa(c.Zoom),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(c.Y),
		"{s}", sub,
	).Replace(s.urlTemplate)
}

func (s *RasterSource) Cache() *Cache[tilemath.Coordinate, []byte] {
	return s.cache
}

// GetTile returns the tile at c. A tile the source does not have comes back
// with empty Data and a nil error.
func (s *RasterSource) GetTile(ctx context.Context, c tilemath.Coordinate) (TileData, error) {
	if err := c.Validate(); err != nil {
		return TileData{}, err
	}

	data, _, err := s.cache.Get(ctx, c)
	if err != nil {
		return TileData{}, err
	}
	return TileData{X: c.X, Y: c.Y, Zoom: c.Zoom, Data: data}, nil
}

// GetTiles fetches every tile covering the box at zoom. See GetTileBatch.
func (s *RasterSource) GetTiles(ctx context.Context, box tilemath.BoundingBox, zoom int) (TileFetchResult, error) {
	coords, err := tilemath.CalculateTileCoordinates(box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, zoom)
	if err != nil {
		return TileFetchResult{}, err
	}
	return s.GetTileBatch(ctx, coords, nil)
}

// GetTileBatch resolves coords with at most the fetcher's concurrency in
// flight. Remote failures are collected per coordinate; cancellation and
// local storage failures abort the batch. When nothing succeeded the result
// is returned together with ErrNoTiles. onDone, if set, is called once per
// finished coordinate.
func (s *RasterSource) GetTileBatch(ctx context.Context, coords []tilemath.Coordinate, onDone func(tilemath.Coordinate)) (TileFetchResult, error) {
	var (
		mu     sync.Mutex
		result = TileFetchResult{
			Tiles:  make([]TileData, 0, len(coords)),
			Errors: []TileFetchError{},
		}
	)

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(s.fetcher.MaxConcurrency())

	for _, c := range coords {
		p.Go(func(ctx context.Context) error {
			tile, err := s.GetTile(ctx, c)
			if err != nil && !errors.Is(err, fetcher.ErrFetchFailed) {
				return err
			}

			mu.Lock()
			if err != nil {
				result.Errors = append(result.Errors, TileFetchError{X: c.X, Y: c.Y, Zoom: c.Zoom, Message: err.Error()})
			} else {
				result.Tiles = append(result.Tiles, tile)
			}
			mu.Unlock()

			if onDone != nil {
				onDone(c)
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		if ctx.Err() != nil {
			return TileFetchResult{}, ctx.Err()
		}
		return TileFetchResult{}, err
	}

	sort.Slice(result.Tiles, func(i, j int) bool {
		return less(result.Tiles[i].Y, result.Tiles[i].X, result.Tiles[j].Y, result.Tiles[j].X)
	})
	sort.Slice(result.Errors, func(i, j int) bool {
		return less(result.Errors[i].Y, result.Errors[i].X, result.Errors[j].Y, result.Errors[j].X)
	})

	if len(result.Tiles) == 0 && len(result.Errors) > 0 {
		s.logger.Warn("tile batch failed completely", "requested", len(coords))
		return result, fmt.Errorf("%w: all %d tiles failed", ErrNoTiles, len(coords))
	}

	if len(result.Errors) > 0 {
		s.logger.Warn("tile batch completed with gaps", "requested", len(coords), "failed", len(result.Errors))
	}

	return result, nil
}

func less(y1, x1, y2, x2 int) bool {
	if y1 != y2 {
		return y1 < y2
	}
	return x1 < x2
}

func (s *RasterSource) GetCacheSizeBytes(ctx context.Context) (int64, error) {
	return s.cache.GetCacheSizeBytes(ctx)
}

func (s *RasterSource) ClearCache(ctx context.Context) error {
	return s.cache.ClearCache(ctx)
}

func (s *RasterSource) CleanupCache(ctx context.Context) (CleanupReport, error) {
	return s.cache.CleanupCache(ctx)
}
