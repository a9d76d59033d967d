// Package api exposes host status and power operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/fgeck/wakehub/internal/services/coordinator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HostLister returns the current view of every host.
type HostLister interface {
	Snapshot() map[string]models.HostSnapshot
}

// Coordinator accepts power operations.
type Coordinator interface {
	RequestOperation(hostID string, kind models.OperationKind) models.OperationResponse
}

// Server holds the handler dependencies.
type Server struct {
	hosts    HostLister
	coord    Coordinator
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

// New creates a Server. gatherer may be nil, in which case /metrics is not mounted.
func New(logger zerolog.Logger, hosts HostLister, coord Coordinator, gatherer prometheus.Gatherer) *Server {
	return &Server{
		hosts:    hosts,
		coord:    coord,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Get("/status", s.statusHandler)
	r.Post("/wake/{id}", s.operationHandler(models.OperationWake))
	r.Post("/shutdown/{id}", s.operationHandler(models.OperationShutdown))

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hosts.Snapshot())
}

func (s *Server) operationHandler(kind models.OperationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		resp := s.coord.RequestOperation(id, kind)

		code := http.StatusAccepted
		switch {
		case resp.Accepted:
		case errors.Is(resp.Error, coordinator.ErrUnknownHost):
			code = http.StatusNotFound
		case errors.Is(resp.Error, coordinator.ErrHostBusy):
			code = http.StatusConflict
		default:
			code = http.StatusBadRequest
		}

		writeJSON(w, code, resp)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
