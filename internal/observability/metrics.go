package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// OpenWeatherMap API call rate by status label. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request.
	WeatherAPIDuration *prometheus.HistogramVec

	// Preference store operations by op (save, load) and result.
	CacheOperationsTotal *prometheus.CounterVec

	// Completed fetch cycles by outcome (success, no_data, no_network, http_4xx, ...).
	FetchCyclesTotal *prometheus.CounterVec

	// Location fixes delivered by provider name.
	LocationFixesTotal *prometheus.CounterVec

	// Numeric controller state (see controller.State).
	ControllerState prometheus.Gauge

	// Status endpoint request rate.
	HTTPRequestsTotal *prometheus.CounterVec

	// Status endpoint latency.
	HTTPRequestDuration *prometheus.HistogramVec

	// Status endpoint requests refused by the rate limiter.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheOperationsTotal",
			Help: "Preference store operations by op and result",
		},
		[]string{"op", "result"},
	)
	FetchCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchCyclesTotal",
			Help: "Completed location-to-weather fetch cycles by outcome",
		},
		[]string{"outcome"},
	)
	LocationFixesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationFixesTotal",
			Help: "Location fixes delivered by provider",
		},
		[]string{"provider"},
	)
	ControllerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controllerState",
			Help: "Current controller state as its numeric value",
		},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of status endpoint requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Status endpoint latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Status endpoint requests rejected by the rate limiter",
		},
	)

	registry.MustRegister(
		WeatherAPICallsTotal, WeatherAPIDuration,
		CacheOperationsTotal,
		FetchCyclesTotal, LocationFixesTotal, ControllerState,
		HTTPRequestsTotal, HTTPRequestDuration, RateLimitDeniedTotal,
	)
}

// RecordFetchCycle counts one finished fetch cycle.
func RecordFetchCycle(outcome string) {
	FetchCyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheOperation counts one preference store operation.
func RecordCacheOperation(op, result string) {
	CacheOperationsTotal.WithLabelValues(op, result).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
