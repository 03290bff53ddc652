package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/network"
	"github.com/kjstillabower/weatherapp/internal/observability"
)

type WeatherClient interface {
	Fetch(ctx context.Context, coords models.Coordinates) (models.WeatherResponse, error)
}

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrNoNetwork     = errors.New("no network available")
	ErrTransport     = errors.New("transport failure")
	// ErrNoData means the upstream answered 2xx with a body that is empty,
	// null or not a weather payload. Callers treat it as "nothing to show".
	ErrNoData = errors.New("no weather data in response")
)

// HTTPError is returned for any non-2xx upstream status.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("weather api: HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// OpenWeatherClient calls the OpenWeatherMap current-weather endpoint. Each
// Fetch issues at most one HTTP request; nothing is retried.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	units   string
	timeout time.Duration
	network network.Checker
	client  *http.Client
}

// NewOpenWeatherClient builds a client for baseURL (e.g.
// "http://api.openweathermap.org/data/"). The request path is
// {baseURL}2.5/weather.
func NewOpenWeatherClient(apiKey, baseURL, units string, timeout time.Duration, checker network.Checker) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if units == "" {
		units = "metric"
	}
	if checker == nil {
		checker = network.Static(true)
	}
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		units:   units,
		timeout: timeout,
		network: checker,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Fetch returns the current weather at coords. Errors: ErrNoNetwork (no
// request issued), *HTTPError, ErrTransport, ErrNoData.
func (c *OpenWeatherClient) Fetch(ctx context.Context, coords models.Coordinates) (models.WeatherResponse, error) {
	if !c.network.Available() {
		observability.WeatherAPICallsTotal.WithLabelValues("no_network").Inc()
		return models.WeatherResponse{}, ErrNoNetwork
	}

	start := time.Now()

	req, err := c.buildRequest(ctx, coords)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherResponse{}, fmt.Errorf("build request: %w", err)
	}

	if cycleID := CycleIDFromContext(ctx); cycleID != "" {
		req.Header.Set("X-Correlation-ID", cycleID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)
		return models.WeatherResponse{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.WeatherResponse{}, &HTTPError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherResponse{}, fmt.Errorf("%w: read response body: %w", ErrTransport, err)
	}
	return decode(body)
}

// decode parses a 2xx body. Only the null checks the display needs are made.
func decode(body []byte) (models.WeatherResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return models.WeatherResponse{}, ErrNoData
	}
	var out models.WeatherResponse
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return models.WeatherResponse{}, fmt.Errorf("%w: parse response: %v", ErrNoData, err)
	}
	return out, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, coords models.Coordinates) (*http.Request, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	endpoint := base.JoinPath("2.5", "weather")

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	params.Set("units", c.units)
	params.Set("appid", c.apiKey)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

type cycleIDKey struct{}

// WithCycleID tags ctx with the fetch-cycle correlation ID.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleIDFromContext returns the cycle ID set by WithCycleID, or "".
func CycleIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return id
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
