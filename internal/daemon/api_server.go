package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"aerial/internal/config"
	"aerial/internal/ipc"
	"aerial/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.WithComponent(logger, "api"),
		daemon: d,
	}

	r := chi.NewRouter()
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		r.Use(bearerAuth(token))
	}
	r.Get("/api/status", srv.handleStatus)
	r.Get("/api/queue", srv.handleQueue)
	r.Post("/api/check", srv.handleCheck)
	r.Post("/api/cancel/{id}", srv.handleCancel)
	r.Get("/api/limit", srv.handleGetLimit)
	r.Post("/api/limit", srv.handleSetLimit)
	r.Post("/api/stop", srv.handleStop)
	r.Get("/api/events", srv.handleEvents)

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// addr returns the bound address, useful when the bind port is 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ipc.DaemonStatus{
		Running:   true,
		PID:       os.Getpid(),
		Version:   Version,
		StartedAt: s.daemon.started,
		NextCheck: s.daemon.NextCheck(),
		Scheduler: s.daemon.sched.Status(),
	})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ipc.QueueResponse{Scheduler: s.daemon.sched.Status()})
}

func (s *apiServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.daemon.TriggerCheck()
	s.writeJSON(w, http.StatusOK, ipc.CheckResponse{Triggered: true})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid episode id")
		return
	}
	cancelled := s.daemon.sched.Cancel(id)
	if !cancelled {
		s.writeError(w, http.StatusNotFound, "episode not queued or active")
		return
	}
	s.writeJSON(w, http.StatusOK, ipc.CancelResponse{Cancelled: true})
}

func (s *apiServer) handleGetLimit(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ipc.LimitResponse{Limit: s.daemon.sched.Limit()})
}

func (s *apiServer) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req ipc.LimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit < 1 {
		s.writeError(w, http.StatusBadRequest, "limit must be at least 1")
		return
	}
	s.daemon.sched.SetLimit(req.Limit)
	s.writeJSON(w, http.StatusOK, ipc.LimitResponse{Limit: s.daemon.sched.Limit()})
}

func (s *apiServer) handleStop(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopping": true})
	s.daemon.Shutdown()
}

// handleEvents streams scheduler state changes as server-sent events.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	events, cancel := s.daemon.events.Subscribe()
	defer cancel()

	// Initial snapshot so a new subscriber does not wait for the next
	// transition.
	if snapshot, err := json.Marshal(s.daemon.sched.Status()); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", snapshot)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ipc.ErrorResponse{Error: message})
}
