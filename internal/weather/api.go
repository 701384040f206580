package weather

import (
	"context"

	"github.com/dskilton/weather-archive/internal/openmeteo"
)

// API is the slice of the Open-Meteo client the service depends on.
// Implementations perform network I/O only; persistence stays with the store.
type API interface {
	Geocode(ctx context.Context, name string) (openmeteo.GeocodingResponse, error)
	Archive(ctx context.Context, lat, lon float64, start, end string) (openmeteo.ArchiveResponse, error)
}
