// Package httpapi implements the control plane's operator-facing HTTP
// surface: health/state reads and kill/resume/mode/reload control
// actions, plus a Prometheus /metrics endpoint. Grounded on
// internal/interfaces/http/server.go: gorilla/mux router, a
// middleware chain (request ID, structured logging, timeout, JSON
// content type), and a config struct with a documented local-only
// default.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/config"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scheduler"
	"github.com/sawpanic/hedgemesh/internal/supervisor"
)

// ServerConfig holds the HTTP server's own tunables, independent of
// what route handlers need.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the documented defaults: local-only,
// port 8080.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the operator HTTP API.
type Server struct {
	router *mux.Router
	server *http.Server
	cfg    ServerConfig

	scheduler  *scheduler.Scheduler
	riskEval   *risk.Evaluator
	supervisor *supervisor.Supervisor
	cfgStore   *config.Store
	cfgPath    string
	metrics    *Metrics
	registry   *prometheus.Registry
}

// Deps bundles the control-plane components the server's handlers
// read from or act on.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	RiskEval   *risk.Evaluator
	Supervisor *supervisor.Supervisor
	CfgStore   *config.Store
	CfgPath    string
}

// NewServer binds a socket and wires the route table. Binding eagerly
// (rather than at Start) surfaces a busy-port error immediately.
func NewServer(cfg ServerConfig, deps Deps) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	registry := prometheus.NewRegistry()
	s := &Server{
		router:     mux.NewRouter(),
		cfg:        cfg,
		scheduler:  deps.Scheduler,
		riskEval:   deps.RiskEval,
		supervisor: deps.Supervisor,
		cfgStore:   deps.CfgStore,
		cfgPath:    deps.CfgPath,
		metrics:    NewMetrics(registry),
		registry:   registry,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Metrics exposes the server's metrics registry so other components
// (scheduler loop, execution engine) can record against it.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/control/kill", s.handleKill).Methods("POST")
	api.HandleFunc("/control/resume", s.handleResume).Methods("POST")
	api.HandleFunc("/control/mode", s.handleMode).Methods("POST")
	api.HandleFunc("/control/override", s.handleOverride).Methods("POST")
	api.HandleFunc("/control/reload", s.handleReload).Methods("POST")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWrapper{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Info().
			Str("request_id", fmt.Sprintf("%v", r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusWrapper struct {
	http.ResponseWriter
	status int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting operator http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
