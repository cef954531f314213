package dto

import (
	"math"

	"github.com/JonathonClaypool/MilMap-sub001/internal/elevation"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilecache"
)

type TileResponse struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Zoom int    `json:"z"`
	Size int    `json:"size"`
	Data []byte `json:"data,omitempty"`
}

type TilesResponse struct {
	Tiles  []TileResponse             `json:"tiles"`
	Errors []tilecache.TileFetchError `json:"errors"`
}

func NewTilesResponse(res tilecache.TileFetchResult, includeData bool) TilesResponse {
	out := TilesResponse{
		Tiles:  make([]TileResponse, 0, len(res.Tiles)),
		Errors: res.Errors,
	}
	if out.Errors == nil {
		out.Errors = []tilecache.TileFetchError{}
	}
	for _, t := range res.Tiles {
		tr := TileResponse{X: t.X, Y: t.Y, Zoom: t.Zoom, Size: len(t.Data)}
		if includeData {
			tr.Data = t.Data
		}
		out.Tiles = append(out.Tiles, tr)
	}
	return out
}

// ElevationResponse carries a null elevation where no data exists.
type ElevationResponse struct {
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Elevation *float64 `json:"elevation"`
}

type ElevationGridResponse struct {
	MinLat   float64      `json:"min_lat"`
	MaxLat   float64      `json:"max_lat"`
	MinLon   float64      `json:"min_lon"`
	MaxLon   float64      `json:"max_lon"`
	Rows     int          `json:"rows"`
	Cols     int          `json:"cols"`
	Coverage float64      `json:"coverage"`
	Values   [][]*float64 `json:"values"`
}

func NewElevationGridResponse(g *elevation.Grid) ElevationGridResponse {
	values := make([][]*float64, g.Rows)
	for r, row := range g.Values {
		values[r] = make([]*float64, len(row))
		for c, v := range row {
			if !math.IsNaN(v) {
				values[r][c] = &v
			}
		}
	}
	return ElevationGridResponse{
		MinLat:   g.MinLat,
		MaxLat:   g.MaxLat,
		MinLon:   g.MinLon,
		MaxLon:   g.MaxLon,
		Rows:     g.Rows,
		Cols:     g.Cols,
		Coverage: g.Coverage(),
		Values:   values,
	}
}
