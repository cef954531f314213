package elevation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"
	"golang.org/x/sync/errgroup"
)

// Grid is a regular resampling of a bounding box. Row 0 is the northern edge
// and column 0 the western edge; both edges are sampled. Values without data
// are NaN.
type Grid struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
	Rows   int
	Cols   int
	Values [][]float64
}

// At returns the value of a cell; ok is false for gaps and out-of-range
// indices.
func (g *Grid) At(r, c int) (float64, bool) {
	if r < 0 || r >= g.Rows || c < 0 || c >= g.Cols {
		return 0, false
	}
	v := g.Values[r][c]
	return v, !math.IsNaN(v)
}

// Coverage is the share of cells holding a value.
func (g *Grid) Coverage() float64 {
	var n int
	for _, row := range g.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				n++
			}
		}
	}
	return float64(n) / float64(g.Rows*g.Cols)
}

// Lat returns the latitude of row r. The first and last rows lie exactly on
// the box edges.
func (g *Grid) Lat(r int) float64 {
	switch {
	case r <= 0:
		return g.MaxLat
	case r >= g.Rows-1:
		return g.MinLat
	}
	lat := g.MaxLat - float64(r)*(g.MaxLat-g.MinLat)/float64(g.Rows-1)
	return min(max(lat, g.MinLat), g.MaxLat)
}

// Lon returns the longitude of column c. The first and last columns lie
// exactly on the box edges.
func (g *Grid) Lon(c int) float64 {
	switch {
	case c <= 0:
		return g.MinLon
	case c >= g.Cols-1:
		return g.MaxLon
	}
	lon := g.MinLon + float64(c)*(g.MaxLon-g.MinLon)/float64(g.Cols-1)
	return min(max(lon, g.MinLon), g.MaxLon)
}

// GetElevationGrid samples rows×cols interpolated elevations over box. Every
// overlapping tile is fetched up front, in parallel. Tiles whose fetch fails
// leave gaps; the call fails only when every tile failed, on cancellation or
// on a local storage error.
func (s *Source) GetElevationGrid(ctx context.Context, box tilemath.BoundingBox, rows, cols int) (*Grid, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("%w: grid needs at least 2 rows and 2 columns, got %dx%d", tilemath.ErrInvalidArgument, rows, cols)
	}

	tiles, err := s.prefetch(ctx, box)
	if err != nil {
		return nil, err
	}

	g := &Grid{
		MinLat: box.MinLat,
		MaxLat: box.MaxLat,
		MinLon: box.MinLon,
		MaxLon: box.MaxLon,
		Rows:   rows,
		Cols:   cols,
		Values: make([][]float64, rows),
	}
	for r := range rows {
		lat := g.Lat(r)
		g.Values[r] = make([]float64, cols)
		for c := range cols {
			lon := g.Lon(c)
			g.Values[r][c] = math.NaN()

			if v, ok := sampleTiles(tiles, lat, lon); ok {
				g.Values[r][c] = v
			}
		}
	}

	return g, nil
}

// sampleTiles interpolates at the point. Points on a northern or eastern tile
// edge are also served by the neighbouring tile sharing that edge.
func sampleTiles(tiles map[TileKey]*Tile, lat, lon float64) (float64, bool) {
	k := KeyFor(lat, lon)
	candidates := []TileKey{k}
	if float64(k.Lat) == lat {
		candidates = append(candidates, TileKey{Lat: k.Lat - 1, Lon: k.Lon})
	}
	if float64(k.Lon) == lon {
		candidates = append(candidates, TileKey{Lat: k.Lat, Lon: k.Lon - 1})
		if float64(k.Lat) == lat {
			candidates = append(candidates, TileKey{Lat: k.Lat - 1, Lon: k.Lon - 1})
		}
	}

	for _, ck := range candidates {
		t, ok := tiles[ck]
		if !ok {
			continue
		}
		if v, ok := t.ElevationInterpolated(lat, lon); ok {
			return v, true
		}
	}
	return 0, false
}

// prefetch loads every tile overlapping box. Absent and failed tiles are left
// out of the result.
func (s *Source) prefetch(ctx context.Context, box tilemath.BoundingBox) (map[TileKey]*Tile, error) {
	// A box ending exactly on a whole degree does not reach into the next tile.
	sw := KeyFor(box.MinLat, box.MinLon)
	ne := TileKey{
		Lat: max(sw.Lat, int(math.Ceil(box.MaxLat))-1),
		Lon: max(sw.Lon, int(math.Ceil(box.MaxLon))-1),
	}

	var (
		mu       sync.Mutex
		tiles    = make(map[TileKey]*Tile)
		failures []error
		total    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetcher.MaxConcurrency())

	for lat := sw.Lat; lat <= ne.Lat; lat++ {
		for lon := sw.Lon; lon <= ne.Lon; lon++ {
			k := TileKey{Lat: lat, Lon: lon}
			total++
			g.Go(func() error {
				t, found, err := s.cache.Get(gctx, k)
				if err != nil {
					if !errors.Is(err, fetcher.ErrFetchFailed) {
						return err
					}
					s.logger.Warn("elevation tile unavailable, leaving gap", "tile", k.String(), "error", err)
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
					return nil
				}
				if found {
					mu.Lock()
					tiles[k] = t
					mu.Unlock()
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if len(failures) == total {
		return nil, failures[0]
	}
	return tiles, nil
}
