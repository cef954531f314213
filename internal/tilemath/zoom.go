// Package tilemath converts between print scales, zoom levels and tile
// coordinates of the standard Web-Mercator tiling scheme.
package tilemath

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinZoom = 0
	MaxZoom = 18

	// EarthCircumference is the equatorial circumference used by Web-Mercator, in meters.
	EarthCircumference = 40075016.686
	// TileSize is the edge length of a raster tile in pixels.
	TileSize = 256

	metersPerInch = 0.0254

	// approximateThreshold is the relative scale deviation above which a zoom
	// result is flagged as approximate.
	approximateThreshold = 0.05
)

var ErrInvalidArgument = errors.New("invalid argument")

type ZoomResult struct {
	Zoom           int     `json:"zoom"`
	MetersPerPixel float64 `json:"meters_per_pixel"`
	ActualScale    float64 `json:"actual_scale"`
	IsApproximate  bool    `json:"is_approximate"`
	Warning        string  `json:"warning,omitempty"`
}

// CalculateZoom picks the zoom level whose ground resolution at latitude is
// closest to what a map printed at 1:scale with the given dpi needs.
func CalculateZoom(scale, dpi, latitude float64) (ZoomResult, error) {
	if !(scale > 0) {
		return ZoomResult{}, fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidArgument, scale)
	}
	if !(dpi > 0) {
		return ZoomResult{}, fmt.Errorf("%w: dpi must be positive, got %v", ErrInvalidArgument, dpi)
	}
	if !(latitude > -90 && latitude < 90) {
		return ZoomResult{}, fmt.Errorf("%w: latitude must be within (-90, 90), got %v", ErrInvalidArgument, latitude)
	}

	target := scale * metersPerInch / dpi

	best := MinZoom
	bestDiff := math.Inf(1)
	for z := MinZoom; z <= MaxZoom; z++ {
		mpp := metersPerPixel(z, latitude)
		if diff := math.Abs(mpp - target); diff < bestDiff {
			best, bestDiff = z, diff
		}
	}

	var warning string
	if target < metersPerPixel(MaxZoom, latitude) {
		best = MaxZoom
		warning = fmt.Sprintf(
			"requested scale 1:%.0f at %.0f dpi needs %.3f m/px, finer than zoom %d provides (%.3f m/px); the map will render at lower effective resolution",
			scale, dpi, target, MaxZoom, metersPerPixel(MaxZoom, latitude),
		)
	}

	mpp := metersPerPixel(best, latitude)
	actual := CalculateActualScale(mpp, dpi)

	return ZoomResult{
		Zoom:           best,
		MetersPerPixel: mpp,
		ActualScale:    actual,
		IsApproximate:  math.Abs(actual-scale)/scale > approximateThreshold,
		Warning:        warning,
	}, nil
}

// RecommendZoom is CalculateZoom reduced to the zoom level.
func RecommendZoom(scale, dpi, latitude float64) (int, error) {
	res, err := CalculateZoom(scale, dpi, latitude)
	if err != nil {
		return 0, err
	}
	return res.Zoom, nil
}

// GetMetersPerPixel returns the Web-Mercator ground resolution of a zoom level
// at the given latitude.
func GetMetersPerPixel(zoom int, latitude float64) (float64, error) {
	if err := ValidateZoom(zoom); err != nil {
		return 0, err
	}
	return metersPerPixel(zoom, latitude), nil
}

// CalculateActualScale is the inverse of the scale-to-resolution formula.
func CalculateActualScale(metersPerPixel, dpi float64) float64 {
	return metersPerPixel * dpi / metersPerInch
}

func ValidateZoom(zoom int) error {
	if zoom < MinZoom || zoom > MaxZoom {
		return fmt.Errorf("%w: zoom must be within [%d, %d], got %d", ErrInvalidArgument, MinZoom, MaxZoom, zoom)
	}
	return nil
}

func metersPerPixel(zoom int, latitude float64) float64 {
	return EarthCircumference * math.Cos(latitude*math.Pi/180) / (TileSize * math.Exp2(float64(zoom)))
}
