// Package status serves the controller's health, current menu state and
// Prometheus metrics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/r0bb10/sensor-menu/internal/menu"
	"github.com/r0bb10/sensor-menu/internal/version"
)

// StateResponse is the body of GET /state.
type StateResponse struct {
	Selected      string          `json:"selected"`
	Screen        string          `json:"screen"`
	Enabled       map[string]bool `json:"enabled"`
	Pending       int             `json:"pending"`
	MQTTConnected bool            `json:"mqtt_connected"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Version version.Info `json:"version"`
}

// Server is the optional status HTTP endpoint.
type Server struct {
	state      *menu.State
	gatherer   prometheus.Gatherer
	connected  func() bool
	logger     *logrus.Entry
	router     chi.Router
	httpServer *http.Server
}

// NewServer builds the router. connected may be nil when there is no broker.
func NewServer(state *menu.State, gatherer prometheus.Gatherer, connected func() bool, logger *logrus.Entry) *Server {
	if connected == nil {
		connected = func() bool { return false }
	}
	s := &Server{
		state:     state,
		gatherer:  gatherer,
		connected: connected,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Get("/healthz", s.healthHandler)
	r.Get("/state", s.stateHandler)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.router = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr in the background. Listen errors after startup are logged.
func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.WithField("addr", addr).Info("Status server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Status server failed")
		}
	}()
}

// Stop shuts the listener down, waiting at most until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Version: version.Get()}
	code := http.StatusOK
	if !s.connected() {
		resp.Status = "degraded"
		resp.Message = "mqtt disconnected"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) stateHandler(w http.ResponseWriter, _ *http.Request) {
	cur := s.state.Current()
	resp := StateResponse{
		Selected:      cur.Selected.Name(),
		Screen:        menu.Screen(cur.Selected, cur.SelectedEnabled()),
		Enabled:       make(map[string]bool, menu.NumItems),
		Pending:       len(s.state.Pending()),
		MQTTConnected: s.connected(),
	}
	for _, it := range menu.Items() {
		resp.Enabled[it.Name()] = cur.Enabled[it]
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Debug("Failed to write response")
	}
}
