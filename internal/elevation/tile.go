// Package elevation serves SRTM-style 1°×1° height tiles and samples them at
// points and on regular grids.
package elevation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// VoidSample marks a sample without elevation data.
	VoidSample = -32768

	// ResolutionOneArcSecond is the edge length of a 1" tile.
	ResolutionOneArcSecond = 3601
	// ResolutionThreeArcSecond is the edge length of a 3" tile.
	ResolutionThreeArcSecond = 1201
)

var ErrCorruptTile = errors.New("corrupt elevation tile")

// TileKey is the south-west corner of a tile in whole degrees.
type TileKey struct {
	Lat int
	Lon int
}

// KeyFor returns the tile containing the point. The north and east edges of
// the world belong to the last tile.
func KeyFor(lat, lon float64) TileKey {
	return TileKey{
		Lat: min(int(math.Floor(lat)), 89),
		Lon: min(int(math.Floor(lon)), 179),
	}
}

// String returns the conventional tile name, e.g. "N45W123".
func (k TileKey) String() string {
	ns, ew := 'N', 'E'
	if k.Lat < 0 {
		ns = 'S'
	}
	if k.Lon < 0 {
		ew = 'W'
	}
	return fmt.Sprintf("%c%02d%c%03d", ns, abs(k.Lat), ew, abs(k.Lon))
}

// LatBand is the latitude part of the name, e.g. "N45".
func (k TileKey) LatBand() string {
	return k.String()[:3]
}

// Tile holds Resolution×Resolution samples, row-major from north to south and
// west to east.
type Tile struct {
	Latitude   int
	Longitude  int
	Resolution int
	Samples    []int16
}

// ParseTile decodes a raw big-endian int16 payload. The resolution follows
// from the payload length; any other length is ErrCorruptTile.
func ParseTile(lat, lon int, data []byte) (*Tile, error) {
	var res int
	switch len(data) {
	case ResolutionOneArcSecond * ResolutionOneArcSecond * 2:
		res = ResolutionOneArcSecond
	case ResolutionThreeArcSecond * ResolutionThreeArcSecond * 2:
		res = ResolutionThreeArcSecond
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrCorruptTile, len(data))
	}

	samples := make([]int16, res*res)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(data[2*i:]))
	}

	return &Tile{
		Latitude:   lat,
		Longitude:  lon,
		Resolution: res,
		Samples:    samples,
	}, nil
}

func (t *Tile) Key() TileKey {
	return TileKey{Lat: t.Latitude, Lon: t.Longitude}
}

// Contains reports whether the point lies in the tile footprint, edges
// included.
func (t *Tile) Contains(lat, lon float64) bool {
	return lat >= float64(t.Latitude) && lat <= float64(t.Latitude+1) &&
		lon >= float64(t.Longitude) && lon <= float64(t.Longitude+1)
}

// position maps a point to fractional sample coordinates.
func (t *Tile) position(lat, lon float64) (row, col float64) {
	n := float64(t.Resolution - 1)
	return (float64(t.Latitude+1) - lat) * n, (lon - float64(t.Longitude)) * n
}

func (t *Tile) sample(row, col int) int16 {
	return t.Samples[row*t.Resolution+col]
}

func (t *Tile) clamp(i int) int {
	return max(0, min(i, t.Resolution-1))
}

// Elevation returns the nearest sample. ok is false outside the footprint or
// on a void sample.
func (t *Tile) Elevation(lat, lon float64) (float64, bool) {
	if !t.Contains(lat, lon) {
		return 0, false
	}

	row, col := t.position(lat, lon)
	v := t.sample(t.clamp(int(math.Round(row))), t.clamp(int(math.Round(col))))
	if v == VoidSample {
		return 0, false
	}
	return float64(v), true
}

// ElevationInterpolated blends the four surrounding samples bilinearly. When
// any of them is void it falls back to Elevation.
func (t *Tile) ElevationInterpolated(lat, lon float64) (float64, bool) {
	if !t.Contains(lat, lon) {
		return 0, false
	}

	row, col := t.position(lat, lon)
	r0, c0 := t.clamp(int(math.Floor(row))), t.clamp(int(math.Floor(col)))
	r1, c1 := t.clamp(r0+1), t.clamp(c0+1)
	fr, fc := row-float64(r0), col-float64(c0)

	v00, v01 := t.sample(r0, c0), t.sample(r0, c1)
	v10, v11 := t.sample(r1, c0), t.sample(r1, c1)
	if v00 == VoidSample || v01 == VoidSample || v10 == VoidSample || v11 == VoidSample {
		return t.Elevation(lat, lon)
	}

	top := float64(v00)*(1-fc) + float64(v01)*fc
	bottom := float64(v10)*(1-fc) + float64(v11)*fc
	return top*(1-fr) + bottom*fr, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
