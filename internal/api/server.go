// Package api implements the REST surface the lifecycle controller
// and auth verifier are exposed through.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Bitsy-Chuck/pomodex/internal/auth"
	"github.com/Bitsy-Chuck/pomodex/internal/health"
	"github.com/Bitsy-Chuck/pomodex/internal/lifecycle"
	"github.com/Bitsy-Chuck/pomodex/internal/metrics"
	"github.com/Bitsy-Chuck/pomodex/internal/registry"
	"github.com/Bitsy-Chuck/pomodex/internal/storage"
)

// Server wires the HTTP router to the auth verifier and lifecycle
// controller; it holds no domain state of its own.
type Server struct {
	store      storage.Store
	verifier   *auth.Verifier
	lifecycle  *lifecycle.Controller
	reg        *registry.Client
	health     *health.Handler
	router     chi.Router

	internalSecret string
	hostIP         string
	terminalPort   int
}

// Config carries the deployment-specific values the server needs to
// build ProjectDetail responses and authorize internal requests.
type Config struct {
	InternalSecret string
	HostIP         string
	TerminalPort   int
}

func NewServer(store storage.Store, verifier *auth.Verifier, lc *lifecycle.Controller, reg *registry.Client, hc *health.Handler, cfg Config) *Server {
	s := &Server{
		store:          store,
		verifier:       verifier,
		lifecycle:      lc,
		reg:            reg,
		health:         hc,
		internalSecret: cfg.InternalSecret,
		hostIP:         cfg.HostIP,
		terminalPort:   cfg.TerminalPort,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
	})

	r.Route("/projects", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleCreateProject)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", s.handleGetProject)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/snapshot", s.handleStop)
			r.Post("/restore", s.handleStart)
			r.Delete("/", s.handleDelete)
			r.Get("/backup-status", s.handleBackupStatus)
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(s.requireInternalSecret)
		r.Post("/validate", s.handleInternalValidate)
	})

	r.Handle("/healthz", s.health)
	r.Handle("/metrics", metrics.Handler())

	return r
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method, route)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
	})
}
