// Package geo provides great-circle distance math for stop proximity checks.
package geo

import (
	"math"
)

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

const earthRadiusMeters = 6371000

// Distance calculates the great-circle distance between two coordinates in
// meters using the haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// DistanceTo returns the distance from c to other in meters.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	return Distance(c, other)
}

// Within reports whether other is within radiusMeters of c.
func (c Coordinate) Within(other Coordinate, radiusMeters float64) bool {
	return Distance(c, other) <= radiusMeters
}

// IsZero reports whether the coordinate is the zero value.
// A (0, 0) coordinate is in the Gulf of Guinea, not on any bus route we serve.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}
