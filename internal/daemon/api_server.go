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
	"strings"
	"sync"
	"time"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
	"murmur/internal/services"
)

// maxRequestBytes bounds a submitted job body.
const maxRequestBytes = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil
	}
	return &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.API.Token),
		logger: logger,
		daemon: d,
	}
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", authMiddleware(s.token, s.handleSubmit))
	mux.HandleFunc("GET /api/jobs", authMiddleware(s.token, s.handleList))
	mux.HandleFunc("DELETE /api/jobs", authMiddleware(s.token, s.handleClear))
	mux.HandleFunc("GET /api/jobs/{id}", authMiddleware(s.token, s.handleGet))
	mux.HandleFunc("POST /api/jobs/{id}/retry", authMiddleware(s.token, s.handleRetry))
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	mux.HandleFunc("POST /api/notifications/test", authMiddleware(s.token, s.handleTestNotification))
	if s.daemon.metrics != nil {
		mux.Handle("GET /metrics", authMiddleware(s.token, s.daemon.metrics.ServeHTTP))
	}
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
	server := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SynthesisRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Kind:  string(services.KindValidation),
		})
		return
	}
	item, err := s.daemon.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromQueueItem(item)})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
					Error: fmt.Sprintf("unknown status %q", part),
					Kind:  string(services.KindValidation),
					Field: "status",
				})
				return
			}
			statuses = append(statuses, status)
		}
	}
	items, err := s.daemon.ListQueue(r.Context(), statuses)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	jobs := api.SortJobsNewestFirst(api.FromQueueItems(items))
	if jobs == nil {
		jobs = []api.Job{}
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		removed int64
		err     error
	)
	switch value := strings.TrimSpace(r.URL.Query().Get("status")); value {
	case "":
		removed, err = s.daemon.ClearQueue(ctx)
	case string(queue.StatusCompleted):
		removed, err = s.daemon.ClearCompleted(ctx)
	case string(queue.StatusFailed):
		removed, err = s.daemon.ClearFailed(ctx)
	default:
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("cannot clear jobs with status %q", value),
			Kind:  string(services.KindValidation),
			Field: "status",
		})
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClearResponse{Removed: removed})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := s.daemon.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromQueueItem(item)})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	item, err := s.daemon.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromQueueItem(item)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
		Checks:       api.FromChecks(status.Checks),
	})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.log().Warn("test notification failed", logging.Error(err))
		s.writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: fmt.Sprintf("%s: %v", message, err)})
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := services.KindOf(err)
	resp := api.ErrorResponse{Error: err.Error(), Kind: string(kind)}
	var validation *pipeline.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}

	status := http.StatusInternalServerError
	switch kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindCanceled:
		status = http.StatusServiceUnavailable
	default:
		s.log().Warn("api request failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(kind)),
			logging.String(logging.FieldEventType, "api_error"),
		)
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
