package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ridealert/ridealert/pkg/geo"
)

func TestDistance(t *testing.T) {
	t.Run("zero distance for identical points", func(t *testing.T) {
		p := geo.Coordinate{Lat: 52.3676, Lon: 4.9041}
		assert.Equal(t, 0.0, geo.Distance(p, p))
	})

	t.Run("known distance Amsterdam to Utrecht", func(t *testing.T) {
		amsterdam := geo.Coordinate{Lat: 52.3676, Lon: 4.9041}
		utrecht := geo.Coordinate{Lat: 52.0907, Lon: 5.1214}

		d := geo.Distance(amsterdam, utrecht)

		// ~34km between the city centers
		assert.InDelta(t, 34000, d, 2000)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := geo.Coordinate{Lat: 52.0, Lon: 4.0}
		b := geo.Coordinate{Lat: 52.1, Lon: 4.1}
		assert.InDelta(t, geo.Distance(a, b), geo.Distance(b, a), 0.0001)
	})

	t.Run("short hop between adjacent stops", func(t *testing.T) {
		// Two stops ~300m apart along a street grid.
		a := geo.Coordinate{Lat: 52.37000, Lon: 4.90000}
		b := geo.Coordinate{Lat: 52.37270, Lon: 4.90000}

		d := geo.Distance(a, b)
		assert.InDelta(t, 300, d, 10)
	})
}

func TestWithin(t *testing.T) {
	center := geo.Coordinate{Lat: 52.37000, Lon: 4.90000}
	near := geo.Coordinate{Lat: 52.37050, Lon: 4.90000}  // ~56m
	far := geo.Coordinate{Lat: 52.38000, Lon: 4.90000}   // ~1.1km

	assert.True(t, center.Within(near, 100))
	assert.False(t, center.Within(far, 100))
}

func TestIsZero(t *testing.T) {
	assert.True(t, geo.Coordinate{}.IsZero())
	assert.False(t, geo.Coordinate{Lat: 52.0, Lon: 4.0}.IsZero())
}
