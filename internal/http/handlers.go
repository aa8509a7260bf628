package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/climate"
	"github.com/kjstillabower/climate-api/internal/lifecycle"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/traffic"
)

const (
	noDataStartMessage = "No data available for the specified start date."
	noDataRangeMessage = "No data available for the specified date range."
)

const indexPage = "Welcome to the Climate API!<br/>" +
	"Available Routes:<br/>" +
	"/api/v1.0/precipitation<br/>" +
	"/api/v1.0/stations<br/>" +
	"/api/v1.0/tobs<br/>" +
	"/api/v1.0/&lt;start&gt;<br/>" +
	"/api/v1.0/&lt;start&gt;/&lt;end&gt;<br/>"

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	RateLimitBurst       int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// StorePing, when set, checks that the dataset is reachable.
	StorePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	climate          *climate.Service
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(climateService *climate.Service, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		climate:      climateService,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetIndex handles GET / with the list of available routes.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexPage))
}

// GetPrecipitation handles GET /api/v1.0/precipitation.
func (h *Handler) GetPrecipitation(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.PrecipitationLastYear(r.Context())
	if err != nil {
		writeQueryError(w, r, err, "")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// GetStations handles GET /api/v1.0/stations.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	ids, err := h.climate.ListStations(r.Context())
	if err != nil {
		writeQueryError(w, r, err, "")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string][]string{"stations": ids})
}

// GetTobs handles GET /api/v1.0/tobs.
func (h *Handler) GetTobs(w http.ResponseWriter, r *http.Request) {
	readings, err := h.climate.MostActiveStationTemperatures(r.Context())
	if err != nil {
		writeQueryError(w, r, err, "")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, readings)
}

// GetTemperatureStats handles GET /api/v1.0/{start} and GET /api/v1.0/{start}/{end}.
func (h *Handler) GetTemperatureStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	start, end := vars["start"], vars["end"]
	noData := noDataStartMessage
	if _, ranged := vars["end"]; ranged {
		noData = noDataRangeMessage
	}

	stats, err := h.climate.TemperatureStats(r.Context(), start, end)
	if err != nil {
		writeQueryError(w, r, err, noData)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, stats)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, db := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if db.pinged {
		if db.err == nil {
			checks["database"] = "healthy"
		} else {
			checks["database"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// storeCheck reports whether the store was pinged and what the ping returned.
type storeCheck struct {
	pinged bool
	err    error
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > database unreachable > overloaded > degraded > healthy.
// Shutting-down short-circuits before the store is pinged.
func (h *Handler) computeHealthStatus(ctx context.Context) (healthResult, storeCheck) {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, storeCheck{}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}, storeCheck{}
	}
	var db storeCheck
	if h.healthConfig.StorePing != nil {
		db = storeCheck{pinged: true, err: h.healthConfig.StorePing(ctx)}
		if db.err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "database_unreachable"}, db
		}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}, db
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}, db
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}, db
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message, "code": code, "requestId": correlation id}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":     message,
		"code":      code,
		"requestId": observability.CorrelationIDFromContext(r.Context()),
	})
}

// writeQueryError maps climate service errors onto HTTP responses. noData is the
// message used for ErrNoData.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error, noData string) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, climate.ErrNoData):
		traffic.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "NO_DATA", noData)
	case errors.Is(err, climate.ErrInvalidDate):
		traffic.RecordSuccess()
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
	case errors.Is(err, climate.ErrEmptyDataset):
		traffic.RecordError()
		logger.Error("dataset is empty", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "EMPTY_DATASET", "The dataset contains no observations")
	case errors.Is(err, context.DeadlineExceeded):
		traffic.RecordError()
		logger.Warn("query timed out", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Query timed out")
	default:
		traffic.RecordError()
		logger.Debug("store error", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to read climate data")
	}
}
