// Package location holds pure geographic helpers and the driver document model.
package location

import (
	"math"

	"gogo/internal/types"
)

// Metres everywhere in the ride core; convert to km only for display and rates.
const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance in metres between two
// points specified in decimal degrees.
func HaversineMeters(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// ValidCoordinate rejects out-of-range values and the (0,0) null island that
// device geolocation reports when it has no fix.
func ValidCoordinate(p types.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return false
	}
	return !(p.Lat == 0 && p.Lng == 0)
}

// EstimateRoute synthesizes a route from the straight-line distance when no
// directions provider is available. avgSpeedKmh <= 0 yields a zero duration.
func EstimateRoute(from, to types.Point, avgSpeedKmh float64) types.Route {
	meters := HaversineMeters(from, to)
	var seconds float64
	if avgSpeedKmh > 0 {
		seconds = meters / (avgSpeedKmh * 1000 / 3600)
	}
	return types.Route{DistanceMeters: meters, DurationSeconds: seconds}
}
