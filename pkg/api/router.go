// Package api exposes the exception workflow as a JSON HTTP API
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/anggasct/exflow"
)

// RemoteUserHeader carries the authenticated username set by the fronting proxy
const RemoteUserHeader = "X-Remote-User"

// Server serves the exception request API over an engine
type Server struct {
	engine  *exflow.Engine
	logger  hclog.Logger
	metrics func() any
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithMetrics serves the value returned by snapshot at GET /metrics
func WithMetrics(snapshot func() any) ServerOption {
	return func(s *Server) { s.metrics = snapshot }
}

// NewServer creates an API server
func NewServer(engine *exflow.Engine, logger hclog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.metrics())
		})
	}

	r.Route("/api/exception-requests", func(r chi.Router) {
		r.Post("/", s.createRequest)
		r.Get("/", s.listRequests)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", s.getRequest)
			r.Post("/reviews", s.reviewRequest)
			r.Post("/resubmit", s.resubmitRequest)
			r.Post("/revalidate", s.revalidateRequest)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()))
	})
}
