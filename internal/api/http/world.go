package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkilian/worlddb/internal/dataset"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/world"
)

// DefaultLimit is the ranking size used when the limit parameter is absent.
const DefaultLimit = 10

// MostPopulatedHandler handles GET /api/mostPopulated.
type MostPopulatedHandler struct {
	service      *world.Service
	defaultLimit int
}

// NewMostPopulatedHandler creates the ranking handler. A defaultLimit
// below 1 uses DefaultLimit.
func NewMostPopulatedHandler(svc *world.Service, defaultLimit int) *MostPopulatedHandler {
	if defaultLimit < 1 {
		defaultLimit = DefaultLimit
	}
	return &MostPopulatedHandler{service: svc, defaultLimit: defaultLimit}
}

func (h *MostPopulatedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q: must be an integer", raw),
				werrors.CodeInvalidLimit, requestID)
			return
		}
		limit = n
	}

	rows, err := h.service.MostPopulated(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.PopulousCity{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// CityHandler handles GET /api/cities/{id}.
type CityHandler struct {
	service *world.Service
}

// NewCityHandler creates the city lookup handler.
func NewCityHandler(svc *world.Service) *CityHandler {
	return &CityHandler{service: svc}
}

func (h *CityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid city id %q", r.PathValue("id")),
			werrors.CodeTypeMismatch, requestID)
		return
	}
	city, ok, err := h.service.City(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("city %d not found", id), "", requestID)
		return
	}
	writeJSON(w, http.StatusOK, city)
}

// CountryHandler handles GET /api/countries/{code}.
type CountryHandler struct {
	service *world.Service
}

// NewCountryHandler creates the country lookup handler.
func NewCountryHandler(svc *world.Service) *CountryHandler {
	return &CountryHandler{service: svc}
}

func (h *CountryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	code := strings.ToUpper(r.PathValue("code"))
	country, ok, err := h.service.Country(r.Context(), code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("country %s not found", code), "", requestID)
		return
	}
	writeJSON(w, http.StatusOK, country)
}

// HealthHandler reports liveness and the engine ping result.
type HealthHandler struct {
	service string
	ping    func(r *http.Request) error
}

// NewHealthHandler creates a health handler. A nil ping always reports
// healthy.
func NewHealthHandler(service string, ping func(r *http.Request) error) *HealthHandler {
	return &HealthHandler{service: service, ping: ping}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"service": h.service,
				"error":   err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": h.service})
}

// ReloadFunc reloads the dataset into the engine.
type ReloadFunc func(ctx context.Context) (dataset.Stats, error)

// ReloadResponse is the body of a successful reload.
type ReloadResponse struct {
	Objects    int   `json:"objects"`
	Statements int   `json:"statements"`
	DurationMs int64 `json:"duration_ms"`
}

// ReloadHandler handles POST /admin/reload.
type ReloadHandler struct {
	reload ReloadFunc
}

// NewReloadHandler creates the reload handler.
func NewReloadHandler(reload ReloadFunc) *ReloadHandler {
	return &ReloadHandler{reload: reload}
}

func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reload(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{
		Objects:    stats.Objects,
		Statements: stats.Statements,
		DurationMs: stats.Duration.Milliseconds(),
	})
}

// RouterConfig describes the routes to serve.
type RouterConfig struct {
	Service *world.Service
	// DefaultLimit is the ranking size when a request gives none.
	DefaultLimit int
	// Health defaults to an always-healthy handler.
	Health *HealthHandler
	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer
	// Reload, when set, is served on POST /admin/reload.
	Reload ReloadFunc
	// Middleware wraps every API route outside the default chain.
	Middleware []func(http.Handler) http.Handler
}

// NewRouter wires the API routes onto a new mux.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		chain := append(append([]func(http.Handler) http.Handler{}, cfg.Middleware...), DefaultMiddleware(name))
		mux.Handle(pattern, ChainMiddleware(chain...)(h))
	}

	route("GET /api/mostPopulated", "mostPopulated", NewMostPopulatedHandler(cfg.Service, cfg.DefaultLimit))
	route("GET /api/cities/{id}", "city", NewCityHandler(cfg.Service))
	route("GET /api/countries/{code}", "country", NewCountryHandler(cfg.Service))
	if cfg.Reload != nil {
		route("POST /admin/reload", "reload", NewReloadHandler(cfg.Reload))
	}

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler("worlddb", nil)
	}
	mux.Handle("GET /health", health)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// writeServiceError maps a service error onto a status code. Validation
// failures are the client's; anything else is a server failure.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetRequestID(r.Context())
	if werrors.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error(), werrors.GetCode(err), requestID)
		return
	}
	log.Printf("Request %s %s failed (request_id=%s): %v", r.Method, r.URL.Path, requestID, err)
	writeError(w, http.StatusInternalServerError, err.Error(), werrors.GetCode(err), requestID)
}
