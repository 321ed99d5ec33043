package geo

import (
	"math"
)

const (
	earthRadiusKm = 6371.0

	// The wire protocol expresses marker distance in miles; the client
	// renders feet as round(miles * 5280).
	milesPerKm = 0.62137119223733
)

// ValidCoordinate checks that a latitude/longitude pair is representable.
// Latitude must be between -90 and 90, longitude between -180 and 180.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceKm computes the great-circle distance between two coordinates
// using the Haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * (math.Pi / 180)
	dLon := (lon2 - lon1) * (math.Pi / 180)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*(math.Pi/180))*math.Cos(lat2*(math.Pi/180))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// KmToMiles converts kilometers to miles.
func KmToMiles(km float64) float64 {
	return km * milesPerKm
}
