// Package dashboard serves a read-only JSON API over the position book
// and the monitor's live risk view.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/cbailey/wheelhouse/internal/monitor"
	"github.com/cbailey/wheelhouse/internal/records"
	"github.com/cbailey/wheelhouse/internal/storage"
)

type Server struct {
	router  *chi.Mux
	server  *http.Server
	storage storage.Interface
	monitor *monitor.Monitor
	logger  *logrus.Logger
	listen  string
}

type Config struct {
	Listen string
}

// NewServer wires routes over storage and the monitor. The monitor may
// be nil; the risk endpoint then reports 503.
func NewServer(cfg Config, store storage.Interface, mon *monitor.Monitor, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:  chi.NewRouter(),
		storage: store,
		monitor: mon,
		logger:  logger,
		listen:  cfg.Listen,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/positions", s.handleListPositions)
	s.router.Get("/api/positions/{id}", s.handleGetPosition)
	s.router.Get("/api/summary", s.handleSummary)
	s.router.Get("/api/risk", s.handleRisk)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.WithField("listen", s.listen).Info("starting dashboard server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.storage.ListOpen()
	if r.URL.Query().Get("archived") == "true" {
		positions, err = s.storage.ListAll()
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pos, err := s.storage.GetPosition(id)
	if err != nil {
		if errors.Is(err, storage.ErrPositionNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	summary, err := s.storage.Summary()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("monitor not configured"))
		return
	}
	positions, err := s.storage.ListOpen()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	force := r.URL.Query().Get("refresh") == "true"
	statuses := s.monitor.CheckAll(r.Context(), positions, force)

	out := make([]records.StatusRecord, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, records.FlattenStatus(st))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.WithError(err).WithField("status", status).Warn("request failed")
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
