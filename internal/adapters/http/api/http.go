// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ShotLister
	StatsProvider
	ReadinessChecker
}

// Server wires HTTP routes for the shot API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	shotsHandler  *ShotsHandler
	live          http.Handler
}

// NewServer creates a new API server with all handlers. live serves the
// WebSocket feed and may be nil.
func NewServer(deps Dependencies, live http.Handler, maxListLimit int) *Server {
	return &Server{
		healthHandler: NewHealthHandler(deps),
		statsHandler:  NewStatsHandler(deps),
		shotsHandler:  NewShotsHandler(deps, maxListLimit),
		live:          live,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/shots", MetricsMiddleware(s.shotsHandler.HandleGetShots, "shots"))
	if s.live != nil {
		mux.HandleFunc("/ws", MetricsMiddleware(s.live.ServeHTTP, "ws"))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
