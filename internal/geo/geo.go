package geo

import (
	"errors"
	"fmt"
	"math"

	"fleetroute/internal/model"
)

const earthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned for NaN or out-of-range lat/lng values.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Validate rejects NaN and out-of-range coordinates.
func Validate(p model.GeoPoint) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return fmt.Errorf("%w: NaN", ErrInvalidCoordinate)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: lat %v out of [-90,90]", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: lng %v out of [-180,180]", ErrInvalidCoordinate, p.Lng)
	}
	return nil
}

// Distance returns the haversine great-circle distance between a and b in km.
func Distance(a, b model.GeoPoint) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng), nil
}

// HaversineKm is Distance without validation, for callers operating on
// already-validated points in tight loops.
func HaversineKm(a, b model.GeoPoint) float64 {
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// SegmentDistance returns the approximate distance in km from point p to the
// straight-line segment a-b. Coordinates are projected onto a local flat plane
// around the segment, which is accurate enough for the short corridor checks
// the cost model performs.
func SegmentDistance(a, b, p model.GeoPoint) float64 {
	// Scale degrees to km; longitude shrinks with latitude.
	latScale := 110.574
	lngScale := 111.320 * math.Cos(a.Lat*math.Pi/180)
	ax, ay := a.Lng*lngScale, a.Lat*latScale
	bx, by := b.Lng*lngScale, b.Lat*latScale
	px, py := p.Lng*lngScale, p.Lat*latScale

	dx, dy := bx-ax, by-ay
	if dx == 0 && dy == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(px-cx, py-cy)
}
