package dto

import "github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"

// BoundingBoxQuery binds min_lat, max_lat, min_lon and max_lon.
type BoundingBoxQuery struct {
	MinLat *float64 `form:"min_lat" validate:"required,gte=-90,lte=90"`
	MaxLat *float64 `form:"max_lat" validate:"required,gte=-90,lte=90"`
	MinLon *float64 `form:"min_lon" validate:"required,gte=-180,lte=180"`
	MaxLon *float64 `form:"max_lon" validate:"required,gte=-180,lte=180"`
}

func (q BoundingBoxQuery) Box() tilemath.BoundingBox {
	return tilemath.BoundingBox{MinLat: *q.MinLat, MaxLat: *q.MaxLat, MinLon: *q.MinLon, MaxLon: *q.MaxLon}
}

type TilesQuery struct {
	BoundingBoxQuery
	Zoom        *int `form:"zoom" validate:"required,min=0,max=18"`
	IncludeData bool `form:"include_data"`
}

type ZoomQuery struct {
	Scale    float64 `form:"scale" validate:"gt=0"`
	DPI      float64 `form:"dpi" validate:"gt=0"`
	Latitude float64 `form:"lat" validate:"gt=-90,lt=90"`
}

type ElevationQuery struct {
	Lat         *float64 `form:"lat" validate:"required,gte=-90,lte=90"`
	Lon         *float64 `form:"lon" validate:"required,gte=-180,lte=180"`
	Interpolate bool     `form:"interpolate"`
}

type ElevationGridQuery struct {
	BoundingBoxQuery
	Rows int `form:"rows" validate:"min=2,max=1000"`
	Cols int `form:"cols" validate:"min=2,max=1000"`
}
