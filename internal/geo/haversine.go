// Package geo implements great-circle distances on a spherical Earth.
package geo

import (
	"math"
	"strings"

	"competitor-radar/internal/models"
)

// Unit selects the distance unit a radius constant is expressed in
type Unit string

const (
	Meters     Unit = "m"
	Kilometers Unit = "km"
	Miles      Unit = "mi"
)

// Earth radius per unit
const (
	EarthRadiusMeters     = 6371000.0
	EarthRadiusKilometers = 6371.0
	EarthRadiusMiles      = 3958.8
)

// EarthRadius returns the mean Earth radius in the given unit
func EarthRadius(u Unit) float64 {
	switch u {
	case Kilometers:
		return EarthRadiusKilometers
	case Miles:
		return EarthRadiusMiles
	default:
		return EarthRadiusMeters
	}
}

// UnitForLocale maps a locale to its presentation distance unit. English uses miles,
// every other locale (es, pt, ...) uses kilometers.
func UnitForLocale(locale string) Unit {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "en" {
		return Miles
	}
	return Kilometers
}

// Haversine returns the central angle between two points, in radians
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Distance returns the great-circle distance between a and b in unit u
func Distance(a, b models.Coordinates, u Unit) float64 {
	return EarthRadius(u) * Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// DistanceMeters is Distance in meters
func DistanceMeters(a, b models.Coordinates) float64 {
	return Distance(a, b, Meters)
}

// Offset moves a point by the given degrees
func Offset(p models.Coordinates, dLat, dLng float64) models.Coordinates {
	return models.Coordinates{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

// DestinationMeters returns the point reached by travelling distance meters from p on
// the given bearing (degrees clockwise from north).
func DestinationMeters(p models.Coordinates, bearingDeg, distance float64) models.Coordinates {
	delta := distance / EarthRadiusMeters
	theta := bearingDeg * math.Pi / 180
	phi1 := p.Lat * math.Pi / 180
	lambda1 := p.Lng * math.Pi / 180

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	return models.Coordinates{Lat: phi2 * 180 / math.Pi, Lng: lambda2 * 180 / math.Pi}
}
