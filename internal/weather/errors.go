package weather

import "errors"

var (
	// ErrLocationNotFound is returned when the geocoding API has no match
	// for a requested place name.
	ErrLocationNotFound = errors.New("location not found")

	// ErrInvalidRange is returned when a query's end date precedes its
	// start date, or a date fails to parse. Raised before any store or
	// network access.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInsufficientData is returned when a range holds zero entries even
	// after backfilling. Queries never mask missing data with zeros.
	ErrInsufficientData = errors.New("insufficient weather data")

	// ErrMapping is returned when an API payload is missing required fields
	// or is structurally malformed.
	ErrMapping = errors.New("malformed api payload")
)
