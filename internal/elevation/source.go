package elevation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/JonathonClaypool/MilMap-sub001/internal/repository/cache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilecache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
)

type SourceConfig struct {
	// URLTemplate accepts {name} ("N45W123") and {lat_band} ("N45").
	URLTemplate string
	Options     tilecache.Options
}

// Source is the elevation tile cache of one remote elevation service.
type Source struct {
	cache       *tilecache.Cache[TileKey, *Tile]
	fetcher     *fetcher.Fetcher
	urlTemplate string
	logger      logger.Logger
}

// NewSource builds an elevation cache on f. A nil store selects the
// filesystem store under cfg.Options.CacheDirectory ({dir}/N45W123.hgt).
func NewSource(cfg SourceConfig, f *fetcher.Fetcher, store cache.Store, l logger.Logger) (*Source, error) {
	if cfg.URLTemplate == "" {
		return nil, errors.New("elevation url template is required")
	}
	if l == nil {
		l = logger.Noop()
	}

	s := &Source{
		fetcher:     f,
		urlTemplate: cfg.URLTemplate,
		logger:      l.With("source", f.Name()),
	}

	c, err := tilecache.New(tilecache.Config[TileKey, *Tile]{
		Name:      f.Name(),
		Extension: "hgt",
		Options:   cfg.Options,
		Store:     store,
		Decode: func(k TileKey, data []byte) (*Tile, error) {
			return ParseTile(k.Lat, k.Lon, data)
		},
		Fetch:  s.fetchTile,
		Logger: l,
	})
	if err != nil {
		return nil, err
	}
	s.cache = c

	return s, nil
}

func (s *Source) fetchTile(ctx context.Context, k TileKey) ([]byte, bool, error) {
	return s.fetcher.Fetch(ctx, s.TileURL(k))
}

func (s *Source) TileURL(k TileKey) string {
	return strings.NewReplacer(
		"{name}", k.String(),
		"{lat_band}", k.LatBand(),
	).Replace(s.urlTemplate)
}

func (s *Source) Cache() *tilecache.Cache[TileKey, *Tile] {
	return s.cache
}

// GetTile returns the tile containing the point, or found == false when the
// service has none (ocean, polar, corrupt payload).
func (s *Source) GetTile(ctx context.Context, lat, lon float64) (*Tile, bool, error) {
	if err := validatePoint(lat, lon); err != nil {
		return nil, false, err
	}
	return s.cache.Get(ctx, KeyFor(lat, lon))
}

// GetElevation returns the nearest sample at the point; ok is false where no
// data exists.
func (s *Source) GetElevation(ctx context.Context, lat, lon float64) (float64, bool, error) {
	t, found, err := s.GetTile(ctx, lat, lon)
	if err != nil || !found {
		return 0, false, err
	}
	v, ok := t.Elevation(lat, lon)
	return v, ok, nil
}

// GetElevationInterpolated is GetElevation with bilinear interpolation.
func (s *Source) GetElevationInterpolated(ctx context.Context, lat, lon float64) (float64, bool, error) {
	t, found, err := s.GetTile(ctx, lat, lon)
	if err != nil || !found {
		return 0, false, err
	}
	v, ok := t.ElevationInterpolated(lat, lon)
	return v, ok, nil
}

func (s *Source) GetCacheSizeBytes(ctx context.Context) (int64, error) {
	return s.cache.GetCacheSizeBytes(ctx)
}

func (s *Source) ClearCache(ctx context.Context) error {
	return s.cache.ClearCache(ctx)
}

func (s *Source) CleanupCache(ctx context.Context) (tilecache.CleanupReport, error) {
	return s.cache.CleanupCache(ctx)
}

func validatePoint(lat, lon float64) error {
	if !(lat >= -90 && lat <= 90) {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", tilemath.ErrInvalidArgument, lat)
	}
	if !(lon >= -180 && lon <= 180) {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", tilemath.ErrInvalidArgument, lon)
	}
	return nil
}
