package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCoordinates is returned when inserting a city whose
	// (latitude, longitude) pair is already taken by another row.
	ErrDuplicateCoordinates = errors.New("city with identical coordinates already exists")

	// ErrConflict is returned when an insert collides with an existing
	// (city, date) entry that carries different values. Identical values are
	// reconciled silently; a genuine conflict is reported, never overwritten.
	ErrConflict = errors.New("conflicting values for existing weather entry")
)

// Store owns the relational schema and enforces its uniqueness invariants.
// Each exported operation is transactional: a partial write is never visible.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) the SQLite database at path and ensures
// the schema exists. Foreign keys are switched on so that deleting a city
// cascades to its weather entries.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Country{}, &City{}, &DailyWeatherEntry{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// CityByName returns the city with the given name (case-insensitive), with
// its country preloaded.
func (s *Store) CityByName(ctx context.Context, name string) (*City, error) {
	var city City
	err := s.db.WithContext(ctx).
		Preload("Country").
		Where("name = ? COLLATE NOCASE", name).
		First(&city).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("city %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find city %q: %w", name, err)
	}
	return &city, nil
}

// CityByCoordinates returns the city at exactly the given coordinates.
func (s *Store) CityByCoordinates(ctx context.Context, lat, lon float64) (*City, error) {
	var city City
	err := s.db.WithContext(ctx).
		Preload("Country").
		Where("latitude = ? AND longitude = ?", lat, lon).
		First(&city).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("city at (%f, %f): %w", lat, lon, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find city at (%f, %f): %w", lat, lon, err)
	}
	return &city, nil
}

// CountryByName returns the country with the given name (case-insensitive).
func (s *Store) CountryByName(ctx context.Context, name string) (*Country, error) {
	var country Country
	err := s.db.WithContext(ctx).
		Where("name = ? COLLATE NOCASE", name).
		First(&country).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("country %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find country %q: %w", name, err)
	}
	return &country, nil
}

// CreateCityWithCountry inserts the city, creating its country first when no
// row with that name exists yet. The two inserts share one transaction:
// either both become visible or neither does. A coordinate collision
// surfaces as ErrDuplicateCoordinates with nothing written.
func (s *Store) CreateCityWithCountry(ctx context.Context, city *City, country Country) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Country
		err := tx.Where("name = ? COLLATE NOCASE", country.Name).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = country
			if err := tx.Create(&existing).Error; err != nil {
				return fmt.Errorf("create country %q: %w", country.Name, err)
			}
		case err != nil:
			return fmt.Errorf("find country %q: %w", country.Name, err)
		}

		city.CountryID = existing.ID
		if err := tx.Create(city).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return fmt.Errorf("city %q at (%f, %f): %w",
					city.Name, city.Latitude, city.Longitude, ErrDuplicateCoordinates)
			}
			return fmt.Errorf("create city %q: %w", city.Name, err)
		}
		city.Country = &existing
		return nil
	})
}

// InsertEntries stores the given weather entries in a single transaction.
// Entries whose (city, date) key already exists with identical values are
// skipped; a key collision with different values aborts the whole batch
// with ErrConflict. Returns the number of rows actually inserted.
func (s *Store) InsertEntries(ctx context.Context, entries []DailyWeatherEntry) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range entries {
			entry := entries[i]
			entry.ID = 0
			err := tx.Create(&entry).Error
			if err == nil {
				inserted++
				continue
			}
			if !isDuplicateKeyErr(err) {
				return fmt.Errorf("insert entry for city %d on %s: %w", entry.CityID, entry.Date, err)
			}
			var existing DailyWeatherEntry
			if err := tx.Where("city_id = ? AND date = ?", entry.CityID, entry.Date).
				First(&existing).Error; err != nil {
				return fmt.Errorf("load existing entry for city %d on %s: %w", entry.CityID, entry.Date, err)
			}
			if !existing.sameValues(entry) {
				return fmt.Errorf("city %d on %s: %w", entry.CityID, entry.Date, ErrConflict)
			}
			// Idempotent re-ingestion of the same values is a no-op.
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// EntriesInRange returns the city's entries between start and end inclusive,
// ordered by date ascending.
func (s *Store) EntriesInRange(ctx context.Context, cityID uint, start, end string) ([]DailyWeatherEntry, error) {
	var entries []DailyWeatherEntry
	err := s.db.WithContext(ctx).
		Where("city_id = ? AND date BETWEEN ? AND ?", cityID, start, end).
		Order("date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query entries for city %d: %w", cityID, err)
	}
	return entries, nil
}

// MissingDates returns, in ascending order, the calendar days within
// [start, end] for which the city has no stored entry.
func (s *Store) MissingDates(ctx context.Context, cityID uint, start, end string) ([]string, error) {
	from, err := time.Parse(DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", start, err)
	}
	to, err := time.Parse(DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", end, err)
	}

	var present []string
	err = s.db.WithContext(ctx).
		Model(&DailyWeatherEntry{}).
		Where("city_id = ? AND date BETWEEN ? AND ?", cityID, start, end).
		Pluck("date", &present).Error
	if err != nil {
		return nil, fmt.Errorf("query stored dates for city %d: %w", cityID, err)
	}

	stored := make(map[string]struct{}, len(present))
	for _, d := range present {
		stored[d] = struct{}{}
	}

	var missing []string
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		d := day.Format(DateLayout)
		if _, ok := stored[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

// AverageMeanTemperature returns the mean of the city's daily mean
// temperatures between start and end inclusive, along with the number of
// entries the average is computed over.
func (s *Store) AverageMeanTemperature(ctx context.Context, cityID uint, start, end string) (float64, int64, error) {
	var row struct {
		Avg float64
		N   int64
	}
	err := s.db.WithContext(ctx).
		Model(&DailyWeatherEntry{}).
		Select("COALESCE(AVG(mean_temp), 0) AS avg, COUNT(*) AS n").
		Where("city_id = ? AND date BETWEEN ? AND ?", cityID, start, end).
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("average mean temperature for city %d: %w", cityID, err)
	}
	return row.Avg, row.N, nil
}

// MonthlyPrecipitation sums precipitation per calendar month across all
// cities of the country for the given year. The returned map only contains
// months with at least one entry; the count reports total contributing rows.
func (s *Store) MonthlyPrecipitation(ctx context.Context, countryID uint, year int) (map[int]float64, float64, int64, error) {
	start := fmt.Sprintf("%04d-01-01", year)
	end := fmt.Sprintf("%04d-12-31", year)

	var rows []struct {
		Month string
		Total float64
		N     int64
	}
	err := s.db.WithContext(ctx).
		Model(&DailyWeatherEntry{}).
		Select("strftime('%m', daily_weather_entries.date) AS month, SUM(daily_weather_entries.precipitation) AS total, COUNT(*) AS n").
		Joins("JOIN cities ON cities.id = daily_weather_entries.city_id").
		Where("cities.country_id = ? AND daily_weather_entries.date BETWEEN ? AND ?", countryID, start, end).
		Group("month").
		Order("month ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, 0, fmt.Errorf("monthly precipitation for country %d: %w", countryID, err)
	}

	monthly := make(map[int]float64, len(rows))
	var total float64
	var count int64
	for _, r := range rows {
		m, err := strconv.Atoi(r.Month)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("unexpected month key %q: %w", r.Month, err)
		}
		monthly[m] = r.Total
		total += r.Total
		count += r.N
	}
	return monthly, total, count, nil
}

// ListCountries returns all countries ordered by name.
func (s *Store) ListCountries(ctx context.Context) ([]Country, error) {
	var countries []Country
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&countries).Error; err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return countries, nil
}

// ListCities returns all cities ordered by name, with countries preloaded.
func (s *Store) ListCities(ctx context.Context) ([]City, error) {
	var cities []City
	if err := s.db.WithContext(ctx).Preload("Country").Order("name ASC").Find(&cities).Error; err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return cities, nil
}

// CitiesByCountry returns the country's cities ordered by name.
func (s *Store) CitiesByCountry(ctx context.Context, countryID uint) ([]City, error) {
	var cities []City
	err := s.db.WithContext(ctx).
		Where("country_id = ?", countryID).
		Order("name ASC").
		Find(&cities).Error
	if err != nil {
		return nil, fmt.Errorf("list cities for country %d: %w", countryID, err)
	}
	return cities, nil
}

// isDuplicateKeyErr reports whether err is a uniqueness violation. GORM
// translates these to ErrDuplicatedKey when the driver supports it; the
// SQLite message check covers drivers that do not.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// DeleteCity removes the named city. Its weather entries go with it via the
// foreign key cascade. This is the only path by which entries are deleted.
func (s *Store) DeleteCity(ctx context.Context, name string) error {
	city, err := s.CityByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&City{}, city.ID).Error; err != nil {
		return fmt.Errorf("delete city %q: %w", name, err)
	}
	s.logger.Info("deleted city and its weather entries",
		zap.String("city", city.Name),
		zap.Uint("id", city.ID))
	return nil
}
