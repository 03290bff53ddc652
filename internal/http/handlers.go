package http

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weatherapp/internal/controller"
	"github.com/kjstillabower/weatherapp/internal/observability"
	"github.com/kjstillabower/weatherapp/internal/presenter"
)

// StateReporter exposes the pipeline state. It must be safe to call from
// request goroutines.
type StateReporter interface {
	State() controller.State
}

// FieldsReporter exposes the fields currently on screen.
type FieldsReporter interface {
	Current() presenter.DisplayFields
}

// HealthConfig holds optional inputs to the health handler.
type HealthConfig struct {
	StartTime time.Time
	// CachePing, when set, is called to check preference store reachability.
	CachePing func() error
}

// Handler holds dependencies for the status endpoints.
type Handler struct {
	state            StateReporter
	fields           FieldsReporter
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
	shuttingDown     atomic.Bool
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(state StateReporter, fields FieldsReporter, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{state: state, fields: fields, healthConfig: healthConfig, logger: logger}
}

// NewRouter wires the status routes and middleware. limiter may be nil.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(RateLimitMiddleware(limiter))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/current", h.GetCurrent).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())
	return router
}

// SetShuttingDown marks the app as draining. Health returns 503 with status
// shutting-down while set.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetHealth handles GET /health. The app is "ok" unless a configured cache
// ping fails or it is shutting down; the pipeline state is reported but
// never makes it unhealthy.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "ok", http.StatusOK
	checks := map[string]string{}
	if h.shuttingDown.Load() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	} else if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			status, statusCode = "degraded", http.StatusServiceUnavailable
			checks["cache"] = "unhealthy"
			if logger := loggerFromContext(r.Context()); logger != nil {
				logger.Debug("cache ping failed", zap.Error(err))
			}
		} else {
			checks["cache"] = "healthy"
		}
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    status,
		"service":   "weatherapp",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.state != nil {
		resp["state"] = h.state.State().String()
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, statusCode, resp)
}

// GetCurrent handles GET /current with the fields last shown on screen.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	if h.fields == nil {
		writeError(w, r, http.StatusNotFound, "NO_WEATHER", "No weather has been displayed yet")
		return
	}
	fields := h.fields.Current()
	if fields.Empty() {
		writeError(w, r, http.StatusNotFound, "NO_WEATHER", "No weather has been displayed yet")
		return
	}
	writeJSON(w, http.StatusOK, fields)
}
