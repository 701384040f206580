package weather

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dskilton/weather-archive/internal/openmeteo"
	"github.com/dskilton/weather-archive/internal/store"
)

// fakeAPI implements API with canned geocoding results and a synthetic
// archive: every day has min 10, max 20 (mean 15) and 1.5mm precipitation.
type fakeAPI struct {
	geocodeCalls int
	archiveCalls int

	results    []openmeteo.GeocodingResult
	geocodeErr error
	archiveErr error
	noData     bool
}

func (f *fakeAPI) Geocode(ctx context.Context, name string) (openmeteo.GeocodingResponse, error) {
	f.geocodeCalls++
	if f.geocodeErr != nil {
		return openmeteo.GeocodingResponse{}, f.geocodeErr
	}
	return openmeteo.GeocodingResponse{Results: f.results}, nil
}

func (f *fakeAPI) Archive(ctx context.Context, lat, lon float64, start, end string) (openmeteo.ArchiveResponse, error) {
	f.archiveCalls++
	if f.archiveErr != nil {
		return openmeteo.ArchiveResponse{}, f.archiveErr
	}
	if f.noData {
		return openmeteo.ArchiveResponse{Latitude: lat, Longitude: lon}, nil
	}

	from, err := time.Parse(store.DateLayout, start)
	if err != nil {
		return openmeteo.ArchiveResponse{}, err
	}
	to, err := time.Parse(store.DateLayout, end)
	if err != nil {
		return openmeteo.ArchiveResponse{}, err
	}

	var daily openmeteo.DailyBlock
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		daily.Time = append(daily.Time, day.Format(store.DateLayout))
		daily.Temperature2mMin = append(daily.Temperature2mMin, 10)
		daily.Temperature2mMax = append(daily.Temperature2mMax, 20)
		daily.PrecipitationSum = append(daily.PrecipitationSum, 1.5)
	}
	return openmeteo.ArchiveResponse{Latitude: lat, Longitude: lon, Daily: daily}, nil
}

func townsville() []openmeteo.GeocodingResult {
	return []openmeteo.GeocodingResult{{
		Name:      "Townsville",
		Latitude:  floatPtr(-19.25),
		Longitude: floatPtr(146.77),
		Country:   "Nowhere",
		Timezone:  "UTC",
	}}
}

func newTestService(t *testing.T, api *fakeAPI) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	return NewService(st, api, zap.NewNop()), st
}

func TestResolveFetchesOnceThenHitsStore(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, _ := newTestService(t, api)
	ctx := context.Background()

	city, err := svc.Resolve(ctx, "Townsville")
	require.NoError(t, err)
	assert.Equal(t, "Townsville", city.Name)
	assert.Equal(t, 1, api.geocodeCalls)

	again, err := svc.Resolve(ctx, "Townsville")
	require.NoError(t, err)
	assert.Equal(t, city.ID, again.ID)
	assert.Equal(t, 1, api.geocodeCalls, "second resolve must not touch the network")

	countries, err := svc.ListCountries(ctx)
	require.NoError(t, err)
	require.Len(t, countries, 1)
	assert.Equal(t, "Nowhere", countries[0].Name)
}

func TestResolveNoMatch(t *testing.T) {
	api := &fakeAPI{}
	svc, _ := newTestService(t, api)

	_, err := svc.Resolve(context.Background(), "Xyzzy")
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

func TestResolveCoordinateCollisionReturnsExistingCity(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, st := newTestService(t, api)
	ctx := context.Background()

	// A differently-named city already occupies the exact coordinates.
	prior := &store.City{Name: "Old Townsville", Latitude: -19.25, Longitude: 146.77, Timezone: "UTC"}
	require.NoError(t, st.CreateCityWithCountry(ctx, prior, store.Country{Name: "Nowhere"}))

	city, err := svc.Resolve(ctx, "Townsville")
	require.NoError(t, err)
	assert.Equal(t, prior.ID, city.ID)

	cities, err := st.ListCities(ctx)
	require.NoError(t, err)
	assert.Len(t, cities, 1)
}

func TestMeanTemperatureRejectsInvalidRangeBeforeAnyIO(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, _ := newTestService(t, api)

	_, err := svc.MeanTemperature(context.Background(), "Townsville", "2023-06-10", "2023-06-01")
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Equal(t, 0, api.geocodeCalls)
	assert.Equal(t, 0, api.archiveCalls)
}

func TestMeanTemperatureBackfillsOnce(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, _ := newTestService(t, api)
	ctx := context.Background()

	mean, err := svc.MeanTemperature(ctx, "Townsville", "2023-06-01", "2023-06-10")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, mean, 1e-9)
	assert.Equal(t, 1, api.archiveCalls)

	// The range is now local; recomputing must not refetch.
	mean, err = svc.MeanTemperature(ctx, "Townsville", "2023-06-01", "2023-06-10")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, mean, 1e-9)
	assert.Equal(t, 1, api.archiveCalls)
}

func TestMeanTemperatureSingleDayMatchesStoredEntry(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, st := newTestService(t, api)
	ctx := context.Background()

	mean, err := svc.MeanTemperature(ctx, "Townsville", "2023-06-05", "2023-06-05")
	require.NoError(t, err)

	city, err := st.CityByName(ctx, "Townsville")
	require.NoError(t, err)
	entries, err := st.EntriesInRange(ctx, city.ID, "2023-06-05", "2023-06-05")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entries[0].MeanTemp, mean)
}

func TestSevenDayPrecipitation(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, _ := newTestService(t, api)

	window, err := svc.SevenDayPrecipitation(context.Background(), "Townsville", "2023-06-01")
	require.NoError(t, err)
	require.Len(t, window, 7)

	for i, day := range window {
		assert.InDelta(t, 1.5, day.Precipitation, 1e-9)
		if i > 0 {
			assert.Less(t, window[i-1].Date, day.Date)
		}
	}
	assert.Equal(t, "2023-06-01", window[0].Date)
	assert.Equal(t, "2023-06-07", window[6].Date)
}

func TestUnreachableAPILeavesStoreUnchanged(t *testing.T) {
	api := &fakeAPI{results: townsville(), archiveErr: openmeteo.ErrUnreachable}
	svc, st := newTestService(t, api)
	ctx := context.Background()

	_, err := svc.MeanTemperature(ctx, "Townsville", "2023-06-01", "2023-06-10")
	assert.ErrorIs(t, err, openmeteo.ErrUnreachable)

	city, err := st.CityByName(ctx, "Townsville")
	require.NoError(t, err)
	entries, err := st.EntriesInRange(ctx, city.ID, "2023-06-01", "2023-06-10")
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial entries may be committed on fetch failure")
}

func TestAverageAnnualTemperatureInsufficientData(t *testing.T) {
	api := &fakeAPI{results: townsville(), noData: true}
	svc, _ := newTestService(t, api)

	_, err := svc.AverageAnnualTemperature(context.Background(), "Townsville", 2023)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestAverageAnnualTemperature(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, _ := newTestService(t, api)

	avg, err := svc.AverageAnnualTemperature(context.Background(), "Townsville", 2023)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, avg, 1e-9)
	assert.Equal(t, 1, api.archiveCalls)
}

func TestAnnualPrecipitationByMonth(t *testing.T) {
	api := &fakeAPI{results: townsville()}
	svc, _ := newTestService(t, api)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "Townsville")
	require.NoError(t, err)

	annual, err := svc.AnnualPrecipitationByMonth(ctx, "Nowhere", 2023)
	require.NoError(t, err)
	assert.Equal(t, "Nowhere", annual.Country)
	assert.Equal(t, 2023, annual.Year)
	require.Len(t, annual.Monthly, 12)

	// 1.5mm per day, 31 days in January, 365 days in 2023.
	assert.InDelta(t, 46.5, annual.Monthly[1], 1e-9)
	assert.InDelta(t, 42.0, annual.Monthly[2], 1e-9)
	assert.InDelta(t, 547.5, annual.Total, 1e-6)
}

func TestAnnualPrecipitationUnknownCountry(t *testing.T) {
	api := &fakeAPI{}
	svc, _ := newTestService(t, api)

	_, err := svc.AnnualPrecipitationByMonth(context.Background(), "Atlantis", 2023)
	assert.ErrorIs(t, err, ErrLocationNotFound)
}
