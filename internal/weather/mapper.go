package weather

import (
	"fmt"
	"time"

	"github.com/dskilton/weather-archive/internal/openmeteo"
	"github.com/dskilton/weather-archive/internal/store"
)

// The geocoding API marks country capitals with this feature code.
const capitalFeatureCode = "PPLC"

// When the API omits a country or timezone the original data set records it
// as unavailable rather than dropping the city.
const unavailable = "Unavailable"

// MapCity converts a geocoding match into a city row plus the country it
// belongs to. Name and coordinates are required; their absence is a mapping
// failure, not a zero value.
func MapCity(res openmeteo.GeocodingResult) (store.City, store.Country, error) {
	if res.Name == "" {
		return store.City{}, store.Country{}, fmt.Errorf("%w: geocoding result missing name", ErrMapping)
	}
	if res.Latitude == nil || res.Longitude == nil {
		return store.City{}, store.Country{}, fmt.Errorf("%w: geocoding result for %q missing coordinates", ErrMapping, res.Name)
	}

	countryName := res.Country
	if countryName == "" {
		countryName = res.CountryCode
	}
	if countryName == "" {
		countryName = unavailable
	}
	timezone := res.Timezone
	if timezone == "" {
		timezone = unavailable
	}

	city := store.City{
		Name:       res.Name,
		Latitude:   *res.Latitude,
		Longitude:  *res.Longitude,
		Population: res.Population,
		Area:       res.Area,
		IsCapital:  res.FeatureCode == capitalFeatureCode,
		Timezone:   timezone,
	}
	country := store.Country{
		Name:     countryName,
		Timezone: timezone,
	}
	return city, country, nil
}

// MapDailyEntries converts the archive API's parallel per-day arrays into
// weather entry rows for the given city. The mean temperature is always
// recomputed as the midpoint of min and max, never trusted from the payload.
func MapDailyEntries(daily openmeteo.DailyBlock, cityID uint) ([]store.DailyWeatherEntry, error) {
	n := len(daily.Time)
	if n == 0 {
		return nil, fmt.Errorf("%w: archive payload has no days", ErrMapping)
	}
	if len(daily.Temperature2mMax) != n || len(daily.Temperature2mMin) != n || len(daily.PrecipitationSum) != n {
		return nil, fmt.Errorf("%w: archive payload arrays disagree on length (%d days, %d max, %d min, %d precipitation)",
			ErrMapping, n, len(daily.Temperature2mMax), len(daily.Temperature2mMin), len(daily.PrecipitationSum))
	}

	entries := make([]store.DailyWeatherEntry, 0, n)
	for i := 0; i < n; i++ {
		if _, err := time.Parse(store.DateLayout, daily.Time[i]); err != nil {
			return nil, fmt.Errorf("%w: unparseable date %q", ErrMapping, daily.Time[i])
		}
		minTemp := daily.Temperature2mMin[i]
		maxTemp := daily.Temperature2mMax[i]
		entries = append(entries, store.DailyWeatherEntry{
			CityID:        cityID,
			Date:          daily.Time[i],
			MinTemp:       minTemp,
			MaxTemp:       maxTemp,
			MeanTemp:      (minTemp + maxTemp) / 2,
			Precipitation: daily.PrecipitationSum[i],
		})
	}
	return entries, nil
}
