package geo

import "math"

const (
	EarthRadiusKm = 6371.0
	kmPerDegree   = 111.32
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate is inside WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm is the great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is a lat/lng rectangle used to prefilter candidates before the exact
// distance check.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns the box enclosing the circle of radiusKm around center.
// Longitude spans the full range near the poles.
func BoundingBox(center Point, radiusKm float64) Box {
	dLat := radiusKm / kmPerDegree
	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	cos := math.Cos(radians(center.Lat))
	if cos > 1e-6 {
		dLng := radiusKm / (kmPerDegree * cos)
		if dLng < 180 {
			box.MinLng = math.Max(-180, center.Lng-dLng)
			box.MaxLng = math.Min(180, center.Lng+dLng)
		}
	}
	return box
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
