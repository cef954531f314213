package tilemath

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxLatitude is the northern limit representable in Web-Mercator.
const MaxLatitude = 85.0511287798066

// Coordinate identifies a raster tile.
type Coordinate struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Zoom int `json:"z"`
}

// String returns the "{zoom}/{x}/{y}" key of the tile.
func (c Coordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

func (c Coordinate) Validate() error {
	if err := ValidateZoom(c.Zoom); err != nil {
		return err
	}
	n := 1 << c.Zoom
	if c.X < 0 || c.X >= n || c.Y < 0 || c.Y >= n {
		return fmt.Errorf("%w: tile %s outside [0, %d)", ErrInvalidArgument, c, n)
	}
	return nil
}

// Tile converts the coordinate to an orb maptile.
func (c Coordinate) Tile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Zoom))
}

// BoundingBox is a geographic rectangle in degrees.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Validate checks ordering and the geographic ranges of the box.
func (b BoundingBox) Validate() error {
	if !(b.MinLat < b.MaxLat) {
		return fmt.Errorf("%w: min latitude %v must be below max latitude %v", ErrInvalidArgument, b.MinLat, b.MaxLat)
	}
	if !(b.MinLon < b.MaxLon) {
		return fmt.Errorf("%w: min longitude %v must be below max longitude %v", ErrInvalidArgument, b.MinLon, b.MaxLon)
	}
	if b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("%w: latitude outside [-90, 90]", ErrInvalidArgument)
	}
	if b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("%w: longitude outside [-180, 180]", ErrInvalidArgument)
	}
	return nil
}

// Bound returns the box as an orb bound (X = longitude, Y = latitude).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// CalculateTileCoordinates returns every tile at zoom covering the box. The
// result is always a full rectangle in tile space, enumerated row by row.
func CalculateTileCoordinates(minLat, maxLat, minLon, maxLon float64, zoom int) ([]Coordinate, error) {
	box := BoundingBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if minLat < -MaxLatitude || maxLat > MaxLatitude {
		return nil, fmt.Errorf("%w: latitude must be within ±%.4f for Web-Mercator tiles", ErrInvalidArgument, MaxLatitude)
	}
	if err := ValidateZoom(zoom); err != nil {
		return nil, err
	}

	z := maptile.Zoom(zoom)
	maxIndex := uint32(1)<<zoom - 1

	minX, minY := uint32(math.MaxUint32), uint32(math.MaxUint32)
	var maxX, maxY uint32
	for _, corner := range []orb.Point{
		{minLon, maxLat},
		{maxLon, maxLat},
		{minLon, minLat},
		{maxLon, minLat},
	} {
		t := maptile.At(corner, z)
		x, y := min(t.X, maxIndex), min(t.Y, maxIndex)
		if corner[0] >= 180 {
			// the antimeridian belongs to the last column, not the first
			x = maxIndex
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}

	coords := make([]Coordinate, 0, int(maxX-minX+1)*int(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			coords = append(coords, Coordinate{X: int(x), Y: int(y), Zoom: zoom})
		}
	}
	return coords, nil
}
