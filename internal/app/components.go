package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/JonathonClaypool/MilMap-sub001/internal/elevation"
	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/JonathonClaypool/MilMap-sub001/internal/overpass"
	"github.com/JonathonClaypool/MilMap-sub001/internal/repository/cache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilecache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/usecase"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/config"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
)

const (
	rasterSourceName    = "osm"
	elevationSourceName = "srtm"
	overpassSourceName  = "overpass"
)

// Components holds every long-lived object built from the configuration.
type Components struct {
	Backend   *cache.Backend
	Raster    *tilecache.RasterSource
	Elevation *elevation.Source
	Overpass  *overpass.Client
	UseCase   *usecase.MapUseCase
}

func NewComponents(ctx context.Context, cfg *config.Config, l logger.Logger) (*Components, error) {
	backend, err := cache.OpenBackend(ctx, cache.BackendConfig{
		Kind:       cfg.Cache.Backend,
		Dir:        cfg.Cache.Dir,
		SQLitePath: cfg.Cache.SQLitePath,
		Redis: cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		},
	}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache backend: %w", err)
	}

	c, err := buildSources(cfg, backend, l)
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}
	return c, nil
}

func buildSources(cfg *config.Config, backend *cache.Backend, l logger.Logger) (*Components, error) {
	rasterFetcher, err := newFetcher(rasterSourceName, cfg.Raster.Fetch, l)
	if err != nil {
		return nil, err
	}
	raster, err := tilecache.NewRasterSource(tilecache.RasterConfig{
		URLTemplate: cfg.Raster.URLTemplate,
		Extension:   cfg.Raster.Extension,
		Options: tilecache.Options{
			CacheDirectory:    filepath.Join(cfg.Cache.Dir, rasterSourceName),
			MaxTileAge:        cfg.Raster.MaxTileAge,
			MaxCacheSizeBytes: cfg.Raster.MaxSizeBytes,
			UseStaleOnError:   cfg.Cache.UseStaleOnError,
			MemoryEntries:     cfg.Raster.MemoryTiles,
		},
	}, rasterFetcher, backend.Store(rasterSourceName, cfg.Raster.Extension), l)
	if err != nil {
		return nil, fmt.Errorf("failed to build raster source: %w", err)
	}

	// Ocean tiles come back as 404 or, from S3-style buckets, 403.
	elevationFetcher, err := newFetcher(elevationSourceName, cfg.Elevation.Fetch, l,
		fetcher.WithAbsentStatus(http.StatusNotFound, http.StatusForbidden))
	if err != nil {
		return nil, err
	}
	elev, err := elevation.NewSource(elevation.SourceConfig{
		URLTemplate: cfg.Elevation.URLTemplate,
		Options: tilecache.Options{
			CacheDirectory:    filepath.Join(cfg.Cache.Dir, elevationSourceName),
			MaxTileAge:        cfg.Elevation.MaxTileAge,
			MaxCacheSizeBytes: cfg.Elevation.MaxSizeBytes,
			UseStaleOnError:   cfg.Cache.UseStaleOnError,
			MemoryEntries:     cfg.Elevation.MemoryTiles,
		},
	}, elevationFetcher, backend.Store(elevationSourceName, "hgt"), l)
	if err != nil {
		return nil, fmt.Errorf("failed to build elevation source: %w", err)
	}

	overpassFetcher, err := newFetcher(overpassSourceName, cfg.Overpass.Fetch, l, fetcher.WithAbsentStatus())
	if err != nil {
		return nil, err
	}
	op, err := overpass.NewClient(cfg.Overpass.URL, overpassFetcher)
	if err != nil {
		return nil, err
	}

	uc := usecase.NewMapUseCase(raster, elev, op,
		[]usecase.MaintainedCache{raster.Cache(), elev.Cache()}, l)

	return &Components{
		Backend:   backend,
		Raster:    raster,
		Elevation: elev,
		Overpass:  op,
		UseCase:   uc,
	}, nil
}

func newFetcher(name string, fc config.Fetch, l logger.Logger, opts ...fetcher.Option) (*fetcher.Fetcher, error) {
	opts = append([]fetcher.Option{fetcher.WithLogger(l)}, opts...)
	return fetcher.New(fetcher.Config{
		Name:               name,
		Timeout:            fc.Timeout,
		UserAgent:          fc.UserAgent,
		MaxConcurrency:     fc.MaxConcurrency,
		MaxRetries:         fc.MaxRetries,
		InitialRetryDelay:  fc.InitialRetryDelay,
		MaxRetryDelay:      fc.MaxRetryDelay,
		MinRequestInterval: fc.MinRequestInterval,
	}, opts...)
}

func (c *Components) Close() error {
	return c.Backend.Close()
}
