package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCoordinate(t *testing.T) {
	tests := []struct {
		name  string
		lat   float64
		lon   float64
		valid bool
	}{
		{"origin", 0, 0, true},
		{"campus", 30.28265, -97.73675, true},
		{"north pole", 90, 0, true},
		{"south pole", -90, 0, true},
		{"date line", 0, 180, true},
		{"lat too high", 90.0001, 0, false},
		{"lat too low", -90.0001, 0, false},
		{"lon too high", 0, 180.0001, false},
		{"lon too low", 0, -180.0001, false},
		{"nan lat", math.NaN(), 0, false},
		{"nan lon", 0, math.NaN(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidCoordinate(tt.lat, tt.lon))
		})
	}
}

func TestDistanceKm(t *testing.T) {
	// Lisbon to Porto, roughly 274 km great circle
	d := DistanceKm(38.7223, -9.1393, 41.1579, -8.6291)
	assert.InDelta(t, 274, d, 3)

	// Two points a few meters apart on a campus
	d = DistanceKm(30.28265, -97.73675, 30.28270, -97.73680)
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 0.01)

	// Distance to self is zero
	assert.Zero(t, DistanceKm(30.28265, -97.73675, 30.28265, -97.73675))

	// Symmetric
	assert.InDelta(t,
		DistanceKm(38.7223, -9.1393, 41.1579, -8.6291),
		DistanceKm(41.1579, -8.6291, 38.7223, -9.1393),
		1e-9)
}

func TestKmToMiles(t *testing.T) {
	assert.InDelta(t, 0.621371, KmToMiles(1), 1e-6)
	assert.InDelta(t, 1.0, KmToMiles(1.609344), 1e-6)
	assert.Zero(t, KmToMiles(0))
}
