// Package api exposes the operator HTTP surface: liveness, worker status,
// and point task lookup. It is read-only; all mutation goes through the
// ledger claim protocol.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"lectern/internal/ledger"
	"lectern/internal/logging"
)

// StatusSource reports the worker's live state.
type StatusSource interface {
	InFlight() int
	Owner() string
}

// Server serves the operator endpoints.
type Server struct {
	bind   string
	logger *slog.Logger
	ledger ledger.Client
	status StatusSource

	listener net.Listener
	server   *http.Server
}

// NewServer builds a Server, or nil when no bind address is configured.
func NewServer(bind string, client ledger.Client, status StatusSource, logger *slog.Logger) *Server {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	srv := &Server{
		bind:   bind,
		logger: logger.With(logging.String(logging.FieldComponent, "api")),
		ledger: client,
		status: status,
	}

	router := chi.NewRouter()
	router.Get("/healthz", srv.handleHealthz)
	router.Get("/status", srv.handleStatus)
	router.Get("/tasks/{id}", srv.handleTask)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Start begins serving and shuts the listener down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
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
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listener address, or empty before Start.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Owner    string         `json:"owner"`
	InFlight int            `json:"in_flight"`
	Queue    ledger.Summary `json:"queue"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	resp := statusResponse{Queue: summary}
	if s.status != nil {
		resp.Owner = s.status.Owner()
		resp.InFlight = s.status.InFlight()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type taskResponse struct {
	ID            string `json:"id"`
	Filename      string `json:"filename,omitempty"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message,omitempty"`
	DocumentKey   string `json:"document_key,omitempty"`
	TranscriptKey string `json:"transcript_key,omitempty"`
	Attempts      int    `json:"attempts"`
	CreatedAt     string `json:"created_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	resp := taskResponse{
		ID:            task.ID,
		Filename:      task.Filename,
		Status:        string(task.Status),
		ErrorMessage:  task.ErrorMessage,
		DocumentKey:   task.DocumentKey,
		TranscriptKey: task.TranscriptKey,
		Attempts:      task.Attempts,
		CreatedAt:     task.CreatedAt.Format(time.RFC3339),
	}
	if task.CompletedAt != nil {
		resp.CompletedAt = task.CompletedAt.Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api response encode failed", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
