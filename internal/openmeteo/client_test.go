package openmeteo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}
}

func TestGeocodeRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"results":[{"name":"Paris","latitude":48.85,"longitude":2.35,"country":"France"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, testRetry(), zap.NewNop())
	resp, err := c.Geocode(context.Background(), "Paris")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Paris", resp.Results[0].Name)
	assert.Equal(t, int32(3), requests.Load())
}

func TestGeocodeDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, testRetry(), zap.NewNop())
	_, err := c.Geocode(context.Background(), "Paris")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.False(t, httpErr.Transient())
	assert.Equal(t, int32(1), requests.Load(), "4xx must fail without retry")
}

func TestGeocodeExhaustsRetries(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, testRetry(), zap.NewNop())
	_, err := c.Geocode(context.Background(), "Paris")

	assert.ErrorIs(t, err, ErrUnreachable)
	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.Equal(t, int32(3), requests.Load())
}

func TestArchiveRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "48.85", q.Get("latitude"))
		assert.Equal(t, "2.35", q.Get("longitude"))
		assert.Equal(t, "2023-06-01", q.Get("start_date"))
		assert.Equal(t, "2023-06-03", q.Get("end_date"))
		assert.Equal(t, "UTC", q.Get("timezone"))
		assert.Equal(t, "temperature_2m_max,temperature_2m_min,precipitation_sum", q.Get("daily"))

		w.Write([]byte(`{
			"latitude": 48.85,
			"longitude": 2.35,
			"daily": {
				"time": ["2023-06-01","2023-06-02","2023-06-03"],
				"temperature_2m_max": [22.1, 23.4, 21.0],
				"temperature_2m_min": [12.0, 13.2, 11.8],
				"precipitation_sum": [0.0, 1.6, 0.2]
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, testRetry(), zap.NewNop())
	resp, err := c.Archive(context.Background(), 48.85, 2.35, "2023-06-01", "2023-06-03")
	require.NoError(t, err)
	require.Len(t, resp.Daily.Time, 3)
	assert.Equal(t, 23.4, resp.Daily.Temperature2mMax[1])
	assert.Equal(t, 1.6, resp.Daily.PrecipitationSum[1])
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, RetryConfig{MaxAttempts: 5, Delay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Geocode(ctx, "Paris")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestMalformedPayloadFailsWithoutRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"results": "not an array"`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, testRetry(), zap.NewNop())
	_, err := c.Geocode(context.Background(), "Paris")
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())
}
