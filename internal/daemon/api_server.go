package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"roundtable/internal/api"
	"roundtable/internal/config"
	"roundtable/internal/logging"
	"roundtable/internal/maintenance"
	"roundtable/internal/services"
	"roundtable/internal/session"
	"roundtable/internal/store"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(token, h))
	}
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/sessions", s.handleListSessions)
	handle("POST /api/sessions", s.handleCreateSession)
	handle("GET /api/sessions/{id}", s.handleGetSession)
	handle("DELETE /api/sessions/{id}", s.handleDeleteSession)
	handle("GET /api/sessions/{id}/diagnose", s.handleDiagnose)
	handle("POST /api/sessions/{id}/recover", s.handleRecover)
	handle("POST /api/sessions/{id}/redownload", s.handleRedownload)
	handle("POST /api/sessions/{id}/cancel", s.handleCancel)
	handle("POST /api/maintenance/stuck", s.handleSweepStuck)
	handle("POST /api/notifications/test", s.handleTestNotification)
	return mux
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
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Workflow.Dependencies),
	})
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var states []session.SessionProcessingState
	for _, value := range r.URL.Query()["state"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		states = append(states, session.SessionProcessingState(trimmed))
	}
	sessions, err := s.daemon.ListSessions(r.Context(), states)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromSessions(sessions)})
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts, err := req.IngestOptions()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.daemon.CreateSession(r.Context(), req.Folder, opts)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SessionResponse{Session: api.FromSession(sess)})
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.daemon.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: api.FromSession(sess)})
}

func (s *apiServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.DeleteSession(r.Context(), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: 1, Message: "deleted " + id})
}

func (s *apiServer) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.Diagnose(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromDiagnostics(report))
}

func (s *apiServer) handleRecover(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.Recover(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count, Message: fmt.Sprintf("reset %d file(s)", count)})
}

func (s *apiServer) handleRedownload(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.Redownload(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count, Message: fmt.Sprintf("downloaded %d transcript(s)", count)})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.CancelSession(id); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CountResponse{Count: 1, Message: "cancel requested for " + id})
}

func (s *apiServer) handleSweepStuck(w http.ResponseWriter, r *http.Request) {
	var threshold time.Duration
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "threshold must be a positive duration such as 30m")
			return
		}
		threshold = parsed
	}
	count, err := s.daemon.SweepStuck(r.Context(), threshold)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count, Message: fmt.Sprintf("repaired %d session(s)", count)})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	resp := api.CountResponse{Message: message}
	if sent {
		resp.Count = 1
	}
	if err != nil {
		resp.Error = err.Error()
		s.writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeFailure maps domain errors onto HTTP status codes.
func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, maintenance.ErrSessionActive), errors.Is(err, ErrFolderInUse), errors.Is(err, ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoRecordings), errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Warn("api request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
