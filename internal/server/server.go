// Package server is the HTTP and WebSocket surface of the dashboard.
package server

import (
	"embed"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/afroash/vpd-monitor/internal/greenhouse"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

//go:embed static/dashboard.html
var static embed.FS

// Options configures the router
type Options struct {
	Version        string
	AuthToken      string   // empty = mutating routes are open
	AllowedOrigins []string // CORS and WebSocket origin allowlist
	DashboardPath  string   // serve this file instead of the built-in page
	Gatherer       prometheus.Gatherer
}

// Server wires the API, the hub and the operational endpoints into one router
type Server struct {
	api     *APIHandler
	hub     *Hub
	opts    Options
	logger  zerolog.Logger
	started time.Time
}

// New creates a server
func New(api *APIHandler, hub *Hub, opts Options, logger zerolog.Logger) *Server {
	return &Server{
		api:     api,
		hub:     hub,
		opts:    opts,
		logger:  logger,
		started: time.Now(),
	}
}

// Router returns the route table without middleware
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.Handle("/ws", s.hub).Methods(http.MethodGet)

	// API routes live on r itself so a method mismatch answers 405
	r.HandleFunc("/api/current", s.api.HandleCurrent).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.api.HandleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard-data", s.api.HandleDashboardData).Methods(http.MethodGet)
	r.HandleFunc("/api/stages", s.api.HandleStages).Methods(http.MethodGet)
	r.HandleFunc("/api/vpd", s.api.HandleVPD).Methods(http.MethodGet)
	r.HandleFunc("/api/advisory", s.api.HandleAdvisory).Methods(http.MethodGet)

	r.Handle("/api/stage", s.requireToken(s.api.HandleSetStage)).Methods(http.MethodPut)
	r.Handle("/api/mode", s.requireToken(s.api.HandleSetMode)).Methods(http.MethodPut)
	r.Handle("/api/actuators/{name}/toggle", s.requireToken(s.api.HandleToggleActuator)).Methods(http.MethodPost)
	r.Handle("/api/advisory", s.requireToken(s.api.HandleRequestAdvisory)).Methods(http.MethodPost)

	return r
}

// Handler returns the router wrapped with access logging, CORS and panic recovery
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	if len(s.opts.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.opts.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(h)
	}
	access := s.logger.With().Str("component", "http").Logger()
	h = handlers.LoggingHandler(access, h)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
}

// requireToken rejects requests without the configured bearer token
func (s *Server) requireToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken != "" && !s.validateToken(r.Header.Get("Authorization")) {
			s.logger.Warn().Str("path", r.URL.Path).Str("remote_addr", r.RemoteAddr).Msg("Rejected request: bad token")
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		next(w, r)
	})
}

// validateToken checks if the auth token is valid
func (s *Server) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == s.opts.AuthToken
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.opts.DashboardPath != "" {
		http.ServeFile(w, r, s.opts.DashboardPath)
		return
	}
	page, err := static.ReadFile("static/dashboard.html")
	if err != nil {
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status  string                  `json:"status"`
	Version string                  `json:"version"`
	Uptime  float64                 `json:"uptime_seconds"`
	Clients int                     `json:"clients"`
	History greenhouse.HistoryStats `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.started)
	if s.api.enclosure != nil {
		uptime = s.api.enclosure.Uptime()
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.opts.Version,
		Uptime:  uptime.Seconds(),
		Clients: len(s.hub.Clients()),
		History: s.api.greenhouse.HistoryStats(),
	})
}

type recoveryLogger struct {
	logger zerolog.Logger
}

// Println implements handlers.RecoveryHandlerLogger
func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Str("panic", fmt.Sprint(v...)).Msg("Recovered from panic in handler")
}
