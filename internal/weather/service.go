package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dskilton/weather-archive/internal/store"
)

// DailyPrecipitation is one day's precipitation in a seven-day window.
type DailyPrecipitation struct {
	Date          string  `json:"date"`
	Precipitation float64 `json:"precipitation"`
}

// AnnualPrecipitation is a country's precipitation for one year, broken down
// by calendar month (1..12).
type AnnualPrecipitation struct {
	Country string          `json:"country"`
	Year    int             `json:"year"`
	Total   float64         `json:"totalPrecipitation"`
	Monthly map[int]float64 `json:"monthlyPrecipitation"`
}

// Service is the core of the pipeline: it resolves place names against the
// local store (geocoding only on a miss), backfills missing date ranges from
// the archive API, and computes aggregates from the then-complete local data.
type Service struct {
	store  *store.Store
	api    API
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(st *store.Store, api API, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		api:    api,
		logger: logger,
	}
}

// Resolve guarantees a city row exists locally for the given place name and
// returns it. A stored city is returned unchanged with zero network calls.
// On a miss the geocoding API is queried, the country created if absent, and
// the city inserted, all in one transaction. A coordinate collision with a
// previously stored city is treated as a hit on that city, not a failure.
func (s *Service) Resolve(ctx context.Context, name string) (*store.City, error) {
	city, err := s.store.CityByName(ctx, name)
	if err == nil {
		return city, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	resp, err := s.api.Geocode(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrLocationNotFound, name)
	}

	mapped, country, err := MapCity(resp.Results[0])
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateCityWithCountry(ctx, &mapped, country); err != nil {
		if errors.Is(err, store.ErrDuplicateCoordinates) {
			// A city with these exact coordinates is already stored; use it.
			return s.store.CityByCoordinates(ctx, mapped.Latitude, mapped.Longitude)
		}
		return nil, err
	}

	s.logger.Info("resolved new city",
		zap.String("city", mapped.Name),
		zap.String("country", country.Name),
		zap.Float64("latitude", mapped.Latitude),
		zap.Float64("longitude", mapped.Longitude))
	return &mapped, nil
}

// Backfill resolves the city and makes sure every day in [start, end] is
// stored locally, fetching from the archive API when anything is missing.
func (s *Service) Backfill(ctx context.Context, cityName, start, end string) error {
	if _, _, err := parseRange(start, end); err != nil {
		return err
	}
	city, err := s.Resolve(ctx, cityName)
	if err != nil {
		return err
	}
	return s.ensureRange(ctx, city, start, end)
}

// AverageAnnualTemperature returns the mean of the city's daily mean
// temperatures across the given year, backfilling the year first.
func (s *Service) AverageAnnualTemperature(ctx context.Context, cityName string, year int) (float64, error) {
	start, end, err := yearBounds(year)
	if err != nil {
		return 0, err
	}
	city, err := s.Resolve(ctx, cityName)
	if err != nil {
		return 0, err
	}
	if err := s.ensureRange(ctx, city, start, end); err != nil {
		return 0, err
	}
	avg, n, err := s.store.AverageMeanTemperature(ctx, city.ID, start, end)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no entries for %s in %d", ErrInsufficientData, city.Name, year)
	}
	return avg, nil
}

// MeanTemperature returns the mean of the city's daily mean temperatures
// over the inclusive date range. The range is validated before any store or
// network access.
func (s *Service) MeanTemperature(ctx context.Context, cityName, start, end string) (float64, error) {
	if _, _, err := parseRange(start, end); err != nil {
		return 0, err
	}
	city, err := s.Resolve(ctx, cityName)
	if err != nil {
		return 0, err
	}
	if err := s.ensureRange(ctx, city, start, end); err != nil {
		return 0, err
	}
	avg, n, err := s.store.AverageMeanTemperature(ctx, city.ID, start, end)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no entries for %s between %s and %s", ErrInsufficientData, city.Name, start, end)
	}
	return avg, nil
}

// SevenDayPrecipitation returns precipitation for exactly the seven
// consecutive days starting at start, ascending by date, backfilling any
// missing day first.
func (s *Service) SevenDayPrecipitation(ctx context.Context, cityName, start string) ([]DailyPrecipitation, error) {
	from, err := time.Parse(store.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: start date %q", ErrInvalidRange, start)
	}
	end := from.AddDate(0, 0, 6).Format(store.DateLayout)

	city, err := s.Resolve(ctx, cityName)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRange(ctx, city, start, end); err != nil {
		return nil, err
	}
	entries, err := s.store.EntriesInRange(ctx, city.ID, start, end)
	if err != nil {
		return nil, err
	}
	if len(entries) < 7 {
		return nil, fmt.Errorf("%w: only %d of 7 days stored for %s from %s", ErrInsufficientData, len(entries), city.Name, start)
	}

	window := make([]DailyPrecipitation, 0, len(entries))
	for _, e := range entries {
		window = append(window, DailyPrecipitation{
			Date:          e.Date,
			Precipitation: e.Precipitation,
		})
	}
	return window, nil
}

// AnnualPrecipitationByMonth sums precipitation per month across all of the
// country's cities for the given year. Each city's year is backfilled before
// computing. Months without data stay at zero; a year with no data at all
// fails with ErrInsufficientData.
func (s *Service) AnnualPrecipitationByMonth(ctx context.Context, countryName string, year int) (*AnnualPrecipitation, error) {
	start, end, err := yearBounds(year)
	if err != nil {
		return nil, err
	}

	country, err := s.store.CountryByName(ctx, countryName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: country %q", ErrLocationNotFound, countryName)
		}
		return nil, err
	}

	cities, err := s.store.CitiesByCountry(ctx, country.ID)
	if err != nil {
		return nil, err
	}
	for i := range cities {
		if err := s.ensureRange(ctx, &cities[i], start, end); err != nil {
			return nil, err
		}
	}

	byMonth, total, n, err := s.store.MonthlyPrecipitation(ctx, country.ID, year)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no entries for country %s in %d", ErrInsufficientData, country.Name, year)
	}

	monthly := make(map[int]float64, 12)
	for m := 1; m <= 12; m++ {
		monthly[m] = byMonth[m]
	}
	return &AnnualPrecipitation{
		Country: country.Name,
		Year:    year,
		Total:   total,
		Monthly: monthly,
	}, nil
}

// ListCountries delegates to the underlying store.
func (s *Service) ListCountries(ctx context.Context) ([]store.Country, error) {
	return s.store.ListCountries(ctx)
}

// ListCities delegates to the underlying store.
func (s *Service) ListCities(ctx context.Context) ([]store.City, error) {
	return s.store.ListCities(ctx)
}

// DeleteCity removes a city and, by cascade, its weather entries.
func (s *Service) DeleteCity(ctx context.Context, name string) error {
	return s.store.DeleteCity(ctx, name)
}

// ensureRange backfills the city's [start, end] window when any day is
// missing locally. The whole window is fetched in one archive call; the
// store's idempotent insert skips days already present. A fetch failure
// leaves the store untouched.
func (s *Service) ensureRange(ctx context.Context, city *store.City, start, end string) error {
	missing, err := s.store.MissingDates(ctx, city.ID, start, end)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	resp, err := s.api.Archive(ctx, city.Latitude, city.Longitude, start, end)
	if err != nil {
		return err
	}
	if len(resp.Daily.Time) == 0 {
		// The archive has nothing for this range; the aggregate queries
		// report insufficient data rather than masking it here.
		return nil
	}
	entries, err := MapDailyEntries(resp.Daily, city.ID)
	if err != nil {
		return err
	}
	inserted, err := s.store.InsertEntries(ctx, entries)
	if err != nil {
		return err
	}

	s.logger.Debug("backfilled weather entries",
		zap.String("city", city.Name),
		zap.String("start", start),
		zap.String("end", end),
		zap.Int("missing", len(missing)),
		zap.Int("inserted", inserted))
	return nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(store.DateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date %q", ErrInvalidRange, start)
	}
	to, err := time.Parse(store.DateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %q", ErrInvalidRange, end)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s precedes start %s", ErrInvalidRange, end, start)
	}
	return from, to, nil
}

func yearBounds(year int) (string, string, error) {
	if year <= 0 {
		return "", "", fmt.Errorf("%w: year %d", ErrInvalidRange, year)
	}
	return fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year), nil
}
