package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/internal/elevation"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilecache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
)

type RasterProvider interface {
	GetTile(ctx context.Context, c tilemath.Coordinate) (tilecache.TileData, error)
	GetTiles(ctx context.Context, box tilemath.BoundingBox, zoom int) (tilecache.TileFetchResult, error)
}

type ElevationProvider interface {
	GetElevation(ctx context.Context, lat, lon float64) (float64, bool, error)
	GetElevationInterpolated(ctx context.Context, lat, lon float64) (float64, bool, error)
	GetElevationGrid(ctx context.Context, box tilemath.BoundingBox, rows, cols int) (*elevation.Grid, error)
}

type OverpassQuerier interface {
	Query(ctx context.Context, query string) ([]byte, error)
}

// MaintainedCache is the maintenance surface shared by every tiered cache.
type MaintainedCache interface {
	Name() string
	Options() tilecache.Options
	GetCacheSizeBytes(ctx context.Context) (int64, error)
	ClearCache(ctx context.Context) error
	CleanupCache(ctx context.Context) (tilecache.CleanupReport, error)
}

type CacheStats struct {
	Name         string        `json:"name"`
	SizeBytes    int64         `json:"size_bytes"`
	MaxSizeBytes int64         `json:"max_size_bytes"`
	MaxTileAge   time.Duration `json:"max_tile_age"`
}

type MapUseCase struct {
	raster    RasterProvider
	elevation ElevationProvider
	overpass  OverpassQuerier
	caches    []MaintainedCache
	logger    logger.Logger
}

func NewMapUseCase(r RasterProvider, e ElevationProvider, o OverpassQuerier, caches []MaintainedCache, l logger.Logger) *MapUseCase {
	return &MapUseCase{
		raster:    r,
		elevation: e,
		overpass:  o,
		caches:    caches,
		logger:    l,
	}
}

// GetTile returns the raster tile at z/x/y; found is false when the tile
// server has no such tile.
func (uc *MapUseCase) GetTile(ctx context.Context, z, x, y int) ([]byte, bool, error) {
	uc.logger.Debug("tile lookup", "z", z, "x", x, "y", y)

	t, err := uc.raster.GetTile(ctx, tilemath.Coordinate{X: x, Y: y, Zoom: z})
	if err != nil {
		return nil, false, err
	}
	return t.Data, len(t.Data) > 0, nil
}

func (uc *MapUseCase) GetTiles(ctx context.Context, box tilemath.BoundingBox, zoom int) (tilecache.TileFetchResult, error) {
	res, err := uc.raster.GetTiles(ctx, box, zoom)
	if err != nil && !errors.Is(err, tilecache.ErrNoTiles) {
		return tilecache.TileFetchResult{}, err
	}
	uc.logger.Info("tile batch resolved", "zoom", zoom, "tiles", len(res.Tiles), "errors", len(res.Errors))
	return res, err
}

func (uc *MapUseCase) TileCoordinates(box tilemath.BoundingBox, zoom int) ([]tilemath.Coordinate, error) {
	return tilemath.CalculateTileCoordinates(box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, zoom)
}

func (uc *MapUseCase) CalculateZoom(scale, dpi, latitude float64) (tilemath.ZoomResult, error) {
	return tilemath.CalculateZoom(scale, dpi, latitude)
}

func (uc *MapUseCase) GetElevation(ctx context.Context, lat, lon float64, interpolate bool) (float64, bool, error) {
	if interpolate {
		return uc.elevation.GetElevationInterpolated(ctx, lat, lon)
	}
	return uc.elevation.GetElevation(ctx, lat, lon)
}

func (uc *MapUseCase) GetElevationGrid(ctx context.Context, box tilemath.BoundingBox, rows, cols int) (*elevation.Grid, error) {
	g, err := uc.elevation.GetElevationGrid(ctx, box, rows, cols)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("elevation grid sampled", "rows", rows, "cols", cols, "coverage", g.Coverage())
	return g, nil
}

func (uc *MapUseCase) QueryOverpass(ctx context.Context, query string) ([]byte, error) {
	return uc.overpass.Query(ctx, query)
}

func (uc *MapUseCase) CacheStats(ctx context.Context) ([]CacheStats, error) {
	stats := make([]CacheStats, 0, len(uc.caches))
	for _, c := range uc.caches {
		size, err := c.GetCacheSizeBytes(ctx)
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", c.Name(), err)
		}
		opts := c.Options()
		stats = append(stats, CacheStats{
			Name:         c.Name(),
			SizeBytes:    size,
			MaxSizeBytes: opts.MaxCacheSizeBytes,
			MaxTileAge:   opts.MaxTileAge,
		})
	}
	return stats, nil
}

// CleanupCaches runs cleanup on every cache. A failing cache does not stop
// the others; the reports of the successful ones are returned with the joined
// errors.
func (uc *MapUseCase) CleanupCaches(ctx context.Context) (map[string]tilecache.CleanupReport, error) {
	reports := make(map[string]tilecache.CleanupReport, len(uc.caches))
	var errs []error
	for _, c := range uc.caches {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		r, err := c.CleanupCache(ctx)
		if err != nil {
			uc.logger.Error("cache cleanup failed", "cache", c.Name(), "error", err)
			errs = append(errs, fmt.Errorf("cache %s: %w", c.Name(), err))
			continue
		}
		reports[c.Name()] = r
	}
	return reports, errors.Join(errs...)
}

func (uc *MapUseCase) ClearCaches(ctx context.Context) error {
	var errs []error
	for _, c := range uc.caches {
		if err := c.ClearCache(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cache %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
