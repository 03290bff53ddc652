package validation

import (
	"errors"
	"math"
	"strings"
)

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ErrCoordinateNotANumber is returned for NaN or infinite coordinates.
var ErrCoordinateNotANumber = errors.New("coordinate is not a finite number")

// ErrInvalidTimezone is returned by ValidateTimezone for unknown IANA names.
var ErrInvalidTimezone = errors.New("invalid timezone")

// ValidateCoordinates checks configured coordinates before they are handed
// to the static location provider. Fixes reported by a provider at runtime
// are not validated.
func ValidateCoordinates(lat, lon float64) error {
	if !finite(lat) || !finite(lon) {
		return ErrCoordinateNotANumber
	}
	if lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if lon < -180 || lon > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// ValidateTimezone accepts "", "Local", "UTC" or any name that looks like an
// IANA zone (Area/City). Loading the zone is left to the caller.
func ValidateTimezone(name string) error {
	s := strings.TrimSpace(name)
	switch s {
	case "", "Local", "UTC":
		return nil
	}
	if strings.ContainsAny(s, " \t\\") || strings.HasPrefix(s, "/") || strings.Contains(s, "..") {
		return ErrInvalidTimezone
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
