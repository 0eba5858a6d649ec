// Package server exposes the operational HTTP surface of a session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/sensor"
	"mqtt-dispatcher/internal/stats"
)

// Session is the part of a session the HTTP surface needs
type Session interface {
	Sensors() *sensor.State
	Broadcast(topics []string, payload string) error
	Stats() *stats.StatsCollector
	IsConnected() bool
	TransportStats() broker.Stats
	PendingInterrupts() int
	PendingMessages() int
	Topics() []string
}

// Config holds server settings
type Config struct {
	Address     string
	MetricsPath string
}

// Server serves health, metrics, stats, sensor and broadcast endpoints
type Server struct {
	session  Session
	gatherer prometheus.Gatherer
	logger   *logger.Logger
	http     *http.Server
}

// New creates a server. A nil gatherer disables the metrics route.
func New(cfg Config, s Session, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	srv := &Server{
		session:  s,
		gatherer: gatherer,
		logger:   log,
	}
	srv.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           srv.Router(cfg.MetricsPath),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Router builds the route table
func (s *Server) Router(metricsPath string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Route("/sensors", func(r chi.Router) {
		r.Get("/", s.handleSensors)
		r.Post("/consume", s.handleConsume)
	})
	r.Post("/broadcast", s.handleBroadcast)

	if s.gatherer != nil {
		r.Handle(metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting ops server", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
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
			"requestId", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.session.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ts := s.session.TransportStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": s.session.Stats().GetStats(),
		"transport": map[string]interface{}{
			"connected":          s.session.IsConnected(),
			"messages_received":  ts.MessagesReceived,
			"messages_published": ts.MessagesPublished,
			"errors":             ts.Errors,
			"last_reconnect":     ts.LastReconnect,
		},
		"pending_messages":   s.session.PendingMessages(),
		"pending_interrupts": s.session.PendingInterrupts(),
		"topics":             s.session.Topics(),
	})
}

type sensorsResponse struct {
	Updated bool        `json:"updated"`
	Sensors interface{} `json:"sensors,omitempty"`
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	state := s.session.Sensors()
	writeJSON(w, http.StatusOK, sensorsResponse{
		Updated: state.Updated(),
		Sensors: state.Snapshot(),
	})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sensorsResponse{
		Updated: s.session.Sensors().ConsumeUpdateFlag(),
	})
}

type broadcastRequest struct {
	Topics  []string `json:"topics"`
	Payload string   `json:"payload"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Topics) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one topic is required"})
		return
	}

	if err := s.session.Broadcast(req.Topics, req.Payload); err != nil {
		s.logger.Warn("broadcast request failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"topics": len(req.Topics)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
