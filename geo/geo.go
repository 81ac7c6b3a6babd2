package geo

import (
	"math"
)

const earthRadiusKm = 6371

// Great-circle distance in kilometers.
func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	aLatRad := aLat * math.Pi / 180
	aLonRad := aLon * math.Pi / 180
	bLatRad := bLat * math.Pi / 180
	bLonRad := bLon * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * earthRadiusKm
}

// Great-circle distance in meters. Schedule distances
// (shape_dist_traveled, distance along block) are all in meters.
func Distance(aLat, aLon, bLat, bLon float64) float64 {
	return HaversineDistance(aLat, aLon, bLat, bLon) * 1000
}

// Linear interpolation between two points, with ratio clamped to
// [0, 1]. Good enough for the short hops between consecutive stops.
func Interpolate(aLat, aLon, bLat, bLon, ratio float64) (float64, float64) {
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	return aLat + (bLat-aLat)*ratio, aLon + (bLon-aLon)*ratio
}
