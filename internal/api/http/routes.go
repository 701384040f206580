package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/dskilton/weather-archive/internal/openmeteo"
	"github.com/dskilton/weather-archive/internal/store"
	"github.com/dskilton/weather-archive/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. The routes are
// a thin presentation surface over the core service: every response is
// structured JSON and every failure maps to a stable status code.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/countries", func(c *fiber.Ctx) error {
		countries, err := service.ListCountries(c.Context())
		if err != nil {
			return statusError(err)
		}
		return c.JSON(fiber.Map{"countries": countries})
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		cities, err := service.ListCities(c.Context())
		if err != nil {
			return statusError(err)
		}
		return c.JSON(fiber.Map{"cities": cities})
	})

	v1.Get("/temperature/annual", func(c *fiber.Ctx) error {
		var q annualQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		avg, err := service.AverageAnnualTemperature(c.Context(), q.City, q.Year)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(fiber.Map{
			"city":               q.City,
			"year":               q.Year,
			"averageTemperature": avg,
		})
	})

	v1.Get("/temperature/mean", func(c *fiber.Ctx) error {
		var q rangeQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		mean, err := service.MeanTemperature(c.Context(), q.City, q.Start, q.End)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(fiber.Map{
			"city":            q.City,
			"start":           q.Start,
			"end":             q.End,
			"meanTemperature": mean,
		})
	})

	v1.Get("/precipitation/seven-day", func(c *fiber.Ctx) error {
		var q sevenDayQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		window, err := service.SevenDayPrecipitation(c.Context(), q.City, q.Start)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(fiber.Map{
			"city": q.City,
			"days": window,
		})
	})

	v1.Get("/precipitation/annual", func(c *fiber.Ctx) error {
		var q countryYearQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		annual, err := service.AnnualPrecipitationByMonth(c.Context(), q.Country, q.Year)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(annual)
	})

	v1.Delete("/cities/:name", func(c *fiber.Ctx) error {
		name := c.Params("name")
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "city name is required")
		}
		if err := service.DeleteCity(c.Context(), name); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// statusError maps core failures onto HTTP status codes. Unrecognized errors
// fall through to 500 via Fiber's default handling.
func statusError(err error) error {
	var httpErr *openmeteo.HTTPError
	switch {
	case errors.Is(err, weather.ErrInvalidRange):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrLocationNotFound), errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrInsufficientData):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, openmeteo.ErrUnreachable), errors.Is(err, openmeteo.ErrCircuitOpen), errors.As(err, &httpErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, weather.ErrMapping):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return err
	}
}

// annualQuery holds parameters for per-city annual queries.
type annualQuery struct {
	City string `validate:"required"`
	Year int    `validate:"required,gte=1940,lte=2100"`
}

func (q *annualQuery) bind(c *fiber.Ctx) error {
	q.City = c.Query("city")
	q.Year = c.QueryInt("year")
	return validate.Struct(q)
}

// rangeQuery holds parameters for date-range queries.
type rangeQuery struct {
	City  string `validate:"required"`
	Start string `validate:"required,datetime=2006-01-02"`
	End   string `validate:"required,datetime=2006-01-02"`
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	q.City = c.Query("city")
	q.Start = c.Query("start")
	q.End = c.Query("end")
	return validate.Struct(q)
}

// sevenDayQuery holds parameters for the seven-day precipitation window.
type sevenDayQuery struct {
	City  string `validate:"required"`
	Start string `validate:"required,datetime=2006-01-02"`
}

func (q *sevenDayQuery) bind(c *fiber.Ctx) error {
	q.City = c.Query("city")
	q.Start = c.Query("start")
	return validate.Struct(q)
}

// countryYearQuery holds parameters for per-country annual queries.
type countryYearQuery struct {
	Country string `validate:"required"`
	Year    int    `validate:"required,gte=1940,lte=2100"`
}

func (q *countryYearQuery) bind(c *fiber.Ctx) error {
	q.Country = c.Query("country")
	q.Year = c.QueryInt("year")
	return validate.Struct(q)
}
