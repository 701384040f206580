// Package openmeteo talks to the Open-Meteo geocoding and archive APIs.
// All network failures are classified before they cross the package
// boundary: transient ones (transport errors, 429, 5xx) are retried a
// bounded number of times with a fixed delay, everything else fails fast.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultGeocodingBaseURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultArchiveBaseURL   = "https://archive-api.open-meteo.com/v1/archive"

	dailyVariables = "temperature_2m_max,temperature_2m_min,precipitation_sum"
)

var (
	// ErrUnreachable marks a terminal network failure, surfaced after the
	// retry budget is exhausted. The last attempt's error is wrapped.
	ErrUnreachable = errors.New("open-meteo unreachable")

	// ErrCircuitOpen is returned while the circuit breaker is rejecting
	// outbound calls; it is not retried.
	ErrCircuitOpen = errors.New("open-meteo circuit open")
)

// HTTPError is a non-2xx response from the API. 429 and 5xx are transient
// and eligible for retry; other statuses fail the call immediately.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("open-meteo returned status %d", e.StatusCode)
}

// Transient reports whether the status is worth retrying.
func (e *HTTPError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryConfig bounds the retry loop. Delay is fixed between attempts.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// GeocodingResponse is the raw geocoding search payload.
type GeocodingResponse struct {
	Results []GeocodingResult `json:"results"`
}

// GeocodingResult is a single geocoding match. Latitude and longitude are
// pointers so the mapper can tell a missing field from a zero coordinate.
type GeocodingResult struct {
	Name        string   `json:"name"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Country     string   `json:"country"`
	CountryCode string   `json:"country_code"`
	Timezone    string   `json:"timezone"`
	Population  int64    `json:"population"`
	Area        float64  `json:"area"`
	FeatureCode string   `json:"feature_code"`
}

// ArchiveResponse is the raw daily-history payload.
type ArchiveResponse struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Daily     DailyBlock `json:"daily"`
}

// DailyBlock holds the archive API's parallel per-day arrays.
type DailyBlock struct {
	Time             []string  `json:"time"`
	Temperature2mMax []float64 `json:"temperature_2m_max"`
	Temperature2mMin []float64 `json:"temperature_2m_min"`
	PrecipitationSum []float64 `json:"precipitation_sum"`
}

// Client issues requests against the two Open-Meteo services. Neither
// requires an API key.
type Client struct {
	httpClient   *http.Client
	geocodingURL string
	archiveURL   string
	retry        RetryConfig
	circuit      *gobreaker.CircuitBreaker
	logger       *zap.Logger
}

// NewClient builds a Client. Empty base URLs fall back to the public
// Open-Meteo endpoints; a non-positive retry config falls back to 3 attempts
// two seconds apart.
func NewClient(httpClient *http.Client, geocodingURL, archiveURL string, retry RetryConfig, logger *zap.Logger) *Client {
	if geocodingURL == "" {
		geocodingURL = DefaultGeocodingBaseURL
	}
	if archiveURL == "" {
		archiveURL = DefaultArchiveBaseURL
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.Delay <= 0 {
		retry.Delay = 2 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		httpClient:   httpClient,
		geocodingURL: geocodingURL,
		archiveURL:   archiveURL,
		retry:        retry,
		circuit:      cb,
		logger:       logger,
	}
}

// Geocode searches for places matching name.
func (c *Client) Geocode(ctx context.Context, name string) (GeocodingResponse, error) {
	values := url.Values{}
	values.Set("name", name)
	values.Set("count", "10")

	var out GeocodingResponse
	if err := c.getJSON(ctx, c.geocodingURL, values, &out); err != nil {
		return GeocodingResponse{}, err
	}
	return out, nil
}

// Archive fetches daily min/max temperature and precipitation for the
// coordinates between start and end (inclusive, yyyy-mm-dd).
func (c *Client) Archive(ctx context.Context, lat, lon float64, start, end string) (ArchiveResponse, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("start_date", start)
	values.Set("end_date", end)
	values.Set("timezone", "UTC")
	values.Set("daily", dailyVariables)

	var out ArchiveResponse
	if err := c.getJSON(ctx, c.archiveURL, values, &out); err != nil {
		return ArchiveResponse{}, err
	}
	return out, nil
}

// getJSON runs the bounded retry loop around a single GET and decodes the
// body into out. Retries use a fixed delay and respect context cancellation.
func (c *Client) getJSON(ctx context.Context, base string, values url.Values, out any) error {
	target := base + "?" + values.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(c.retry.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		body, err := c.get(ctx, target)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response from %s: %w", base, err)
			}
			return nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Transient() {
			return err
		}
		if errors.Is(err, ErrCircuitOpen) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		c.logger.Warn("open-meteo request failed",
			zap.String("url", base),
			zap.Int("attempt", attempt),
			zap.Error(err))
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, c.retry.MaxAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &HTTPError{StatusCode: resp.StatusCode}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}
