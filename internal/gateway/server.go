// Package gateway implements the submission surface (§6): the HTTP/WS API
// through which goals are submitted, task state is polled, and the task
// log/state stream is subscribed to.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remotepilot/daemon/internal/gateway/ws"
	"github.com/remotepilot/daemon/internal/metrics"
	"github.com/remotepilot/daemon/internal/registry"
	"github.com/remotepilot/daemon/internal/scheduler"
	"github.com/remotepilot/daemon/internal/task"
)

// Version is reported by GET / for liveness checks.
const Version = "0.1.0"

// Engine is the narrow lifecycle capability the gateway needs.
type Engine interface {
	Submit(goal string) string
	Get(id string) (task.Snapshot, error)
}

// Server is the daemon's submission surface.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	engine     Engine
	scheduler  *scheduler.Scheduler
}

// New constructs a Server bound to addr ("host:port"). hub must already be
// wired to the registry's global bus (see registry.AttachBus).
func New(addr string, engine Engine, sched *scheduler.Scheduler, hub *ws.Hub, host *metrics.Host) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{hub: hub, engine: engine, scheduler: sched}

	r.Get("/", s.handleRoot)
	r.Post("/task/submit", s.handleSubmit)
	r.Get("/task/state/{id}", s.handleState)
	r.Get("/ws/logs", hub.ServeWS)
	r.Post("/task/schedule", s.handleSchedule)
	r.Get("/metrics", s.handleMetrics(host))
	r.Handle("/metrics/prom", promhttp.Handler())

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server and its WS hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Goal string `json:"goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Goal == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}

	id := s.engine.Submit(body.Goal)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "submitted"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.engine.Get(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not available"})
		return
	}

	var body struct {
		Goal string `json:"goal"`
		Cron string `json:"cron"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Goal == "" || body.Cron == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal and cron are required"})
		return
	}

	entry, err := s.scheduler.Add(body.Goal, body.Cron)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "job_id": entry.ID})
}

func (s *Server) handleMetrics(host *metrics.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, host.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
