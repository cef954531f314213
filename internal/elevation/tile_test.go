package elevation

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// encodeTile renders res×res samples produced by fill as a raw payload.
func encodeTile(res int, fill func(row, col int) int16) []byte {
	data := make([]byte, res*res*2)
	for r := range res {
		for c := range res {
			binary.BigEndian.PutUint16(data[2*(r*res+c):], uint16(fill(r, c)))
		}
	}
	return data
}

func uniform(v int16) func(int, int) int16 {
	return func(int, int) int16 { return v }
}

func TestParseTileResolution(t *testing.T) {
	tile, err := ParseTile(45, -123, encodeTile(ResolutionThreeArcSecond, uniform(7)))
	require.NoError(t, err)
	require.Equal(t, ResolutionThreeArcSecond, tile.Resolution)
	require.Len(t, tile.Samples, ResolutionThreeArcSecond*ResolutionThreeArcSecond)

	tile, err = ParseTile(45, -123, make([]byte, ResolutionOneArcSecond*ResolutionOneArcSecond*2))
	require.NoError(t, err)
	require.Equal(t, ResolutionOneArcSecond, tile.Resolution)
}

func TestParseTileRejectsOtherLengths(t *testing.T) {
	for _, n := range []int{0, 1, 1201 * 1201, 1201*1201*2 + 2, 3601 * 3601} {
		_, err := ParseTile(0, 0, make([]byte, n))
		require.ErrorIs(t, err, ErrCorruptTile, "length %d", n)
	}
}

func TestParseTileByteOrder(t *testing.T) {
	tile, err := ParseTile(0, 0, encodeTile(ResolutionThreeArcSecond, func(r, c int) int16 {
		return int16(r - c)
	}))
	require.NoError(t, err)

	require.Equal(t, int16(0), tile.sample(0, 0))
	require.Equal(t, int16(5), tile.sample(5, 0))
	require.Equal(t, int16(-3), tile.sample(0, 3))
	require.Equal(t, int16(-1000), tile.sample(200, 1200))
}

func TestElevationUniformTile(t *testing.T) {
	tile, err := ParseTile(45, -123, encodeTile(ResolutionThreeArcSecond, uniform(1234)))
	require.NoError(t, err)

	for _, p := range [][2]float64{{45, -123}, {45.5, -122.5}, {46, -122}, {45.1234, -122.9876}} {
		v, ok := tile.Elevation(p[0], p[1])
		require.True(t, ok)
		require.Equal(t, 1234.0, v)

		v, ok = tile.ElevationInterpolated(p[0], p[1])
		require.True(t, ok)
		require.InDelta(t, 1234.0, v, 1e-9)
	}
}

func TestElevationOutsideFootprint(t *testing.T) {
	tile, err := ParseTile(45, -123, encodeTile(ResolutionThreeArcSecond, uniform(10)))
	require.NoError(t, err)

	for _, p := range [][2]float64{{44.99, -122.5}, {46.01, -122.5}, {45.5, -123.01}, {45.5, -121.99}} {
		_, ok := tile.Elevation(p[0], p[1])
		require.False(t, ok)
		_, ok = tile.ElevationInterpolated(p[0], p[1])
		require.False(t, ok)
	}
}

func TestElevationVoidSample(t *testing.T) {
	tile, err := ParseTile(0, 0, encodeTile(ResolutionThreeArcSecond, uniform(VoidSample)))
	require.NoError(t, err)

	_, ok := tile.Elevation(0.5, 0.5)
	require.False(t, ok)
	_, ok = tile.ElevationInterpolated(0.5, 0.5)
	require.False(t, ok)
}

func TestElevationInterpolatedBlends(t *testing.T) {
	// Values grow by one per column from west to east.
	tile, err := ParseTile(0, 0, encodeTile(ResolutionThreeArcSecond, func(_, c int) int16 { return int16(c) }))
	require.NoError(t, err)

	step := 1.0 / float64(ResolutionThreeArcSecond-1)
	lat := 1.0 - 10*step

	v, ok := tile.ElevationInterpolated(lat, 0.5*step)
	require.True(t, ok)
	require.InDelta(t, 0.5, v, 1e-9)

	v, ok = tile.ElevationInterpolated(lat, 100.25*step)
	require.True(t, ok)
	require.InDelta(t, 100.25, v, 1e-9)
}

func TestElevationInterpolatedVoidCornerFallsBackToNearest(t *testing.T) {
	tile, err := ParseTile(0, 0, encodeTile(ResolutionThreeArcSecond, func(r, c int) int16 {
		if r == 0 && c == 1 {
			return VoidSample
		}
		return int16(100 + c)
	}))
	require.NoError(t, err)

	step := 1.0 / float64(ResolutionThreeArcSecond-1)
	lat, lon := 1.0-0.2*step, 0.3*step

	nearest, ok := tile.Elevation(lat, lon)
	require.True(t, ok)
	require.Equal(t, 100.0, nearest)

	v, ok := tile.ElevationInterpolated(lat, lon)
	require.True(t, ok)
	require.Equal(t, nearest, v)
}

func TestTileKeyNaming(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     string
		band     string
	}{
		{lat: 45.5, lon: -122.3, want: "N45W123", band: "N45"},
		{lat: -3.2, lon: 10.7, want: "S04E010", band: "S04"},
		{lat: 0, lon: 0, want: "N00E000", band: "N00"},
		{lat: -0.5, lon: -0.5, want: "S01W001", band: "S01"},
		{lat: 90, lon: 180, want: "N89E179", band: "N89"},
	}

	for _, tt := range tests {
		k := KeyFor(tt.lat, tt.lon)
		require.Equal(t, tt.want, k.String())
		require.Equal(t, tt.band, k.LatBand())
	}
}
