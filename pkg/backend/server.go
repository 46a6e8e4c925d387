package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultShutdownGrace bounds how long Stop waits for in-flight work.
const DefaultShutdownGrace = 5 * time.Second

// clientIDHeader carries the caller's instance ID. The client half of
// the wire contract sets it on every request.
const clientIDHeader = "X-Mnemo-Client"

// Recaller produces a consolidated report for an interest. A nil report
// with a nil error means no report could be assembled in budget.
type Recaller interface {
	Recall(ctx context.Context, interest string, deep bool) (*string, error)
}

// Memorizer folds new content into the store and summarizes what
// changed.
type Memorizer interface {
	Memorize(ctx context.Context, content string) (string, error)
}

// ServerConfig wires the HTTP surface to the agent layer.
type ServerConfig struct {
	Recaller  Recaller
	Memorizer Memorizer
	Activity  *Activity

	// ApplyLogLevel applies a normalized level (DEBUG..CRITICAL or
	// DISABLE) to the process logger. Optional.
	ApplyLogLevel func(level string)

	ShutdownGrace time.Duration
	Logger        zerolog.Logger
}

// Server is the loopback HTTP surface of the backend. The wire format
// is fixed by the frontend contract: every response is a JSON object
// with a status field, errors carry an error field.
type Server struct {
	recaller      Recaller
	memorizer     Memorizer
	activity      *Activity
	applyLogLevel func(level string)
	shutdownGrace time.Duration
	logger        zerolog.Logger

	server *http.Server

	jobCtx     context.Context
	cancelJobs context.CancelFunc

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlight       sync.WaitGroup
}

// NewServer creates the backend HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Recaller == nil {
		return nil, fmt.Errorf("recaller is required")
	}
	if cfg.Memorizer == nil {
		return nil, fmt.Errorf("memorizer is required")
	}
	if cfg.Activity == nil {
		return nil, fmt.Errorf("activity tracker is required")
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())

	return &Server{
		recaller:      cfg.Recaller,
		memorizer:     cfg.Memorizer,
		activity:      cfg.Activity,
		applyLogLevel: cfg.ApplyLogLevel,
		shutdownGrace: cfg.ShutdownGrace,
		logger:        cfg.Logger,
		jobCtx:        jobCtx,
		cancelJobs:    cancelJobs,
	}, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/recall", s.handleRecall)
	mux.HandleFunc("/memorize", s.handleMemorize)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("/log_level", s.handleLogLevel)
	return mux
}

// Serve runs the server on the listener until Stop is called. The
// listener decides the port; the caller reports it to clients.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{Handler: s.Handler()}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Backend server listening")

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("backend server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and background jobs, cancelling
// whatever outlives the grace period, then shuts the listener down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down backend server")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight work completed")
	case <-time.After(s.shutdownGrace):
		s.logger.Warn().Msg("Shutdown grace expired, cancelling remaining work")
	}

	s.cancelJobs()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown backend server: %w", err)
	}

	s.logger.Info().Msg("Backend server stopped")
	return nil
}

// admit rejects wrong methods and requests arriving during shutdown.
// Admitted requests are tracked until the handler returns.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}

	s.shutdownMu.RLock()
	down := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if down {
		writeError(w, http.StatusServiceUnavailable, "backend is shutting down")
		return false
	}

	s.inFlight.Add(1)

	s.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("client", r.Header.Get(clientIDHeader)).
		Msg("Request admitted")
	return true
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodPost) {
		return
	}
	defer s.inFlight.Done()

	s.activity.Begin()
	defer s.activity.End()

	var req struct {
		Interest *string `json:"interest"`
		Deep     bool    `json:"deep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Interest == nil {
		writeError(w, http.StatusInternalServerError, "missing field: interest")
		return
	}

	report, err := s.recaller.Recall(r.Context(), *req.Interest, req.Deep)
	if err != nil {
		s.logger.Error().Err(err).Msg("Recall failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var result interface{}
	if report != nil {
		result = *report
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"result": result,
	})
}

func (s *Server) handleMemorize(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodPost) {
		return
	}
	defer s.inFlight.Done()

	s.activity.Touch()

	var req struct {
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Content == nil {
		writeError(w, http.StatusInternalServerError, "missing field: content")
		return
	}

	jobID := uuid.NewString()

	// The job outlives this request, so it is registered before the
	// response goes out and runs on the server's own context.
	s.activity.Begin()
	s.inFlight.Add(1)
	go s.runMemorize(jobID, *req.Content)

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) runMemorize(jobID, content string) {
	defer s.inFlight.Done()
	defer s.activity.End()

	logger := s.logger.With().Str("jobId", jobID).Logger()
	logger.Info().Int("contentLength", len(content)).Msg("Memorize job started")

	summary, err := s.memorizer.Memorize(s.jobCtx, content)
	if err != nil {
		logger.Error().Err(err).Msg("Memorize job failed")
		return
	}
	if summary == "" {
		logger.Warn().Msg("Memorize job ended without a summary")
		return
	}
	logger.Info().Str("summary", summary).Msg("Memorize job completed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodGet) {
		return
	}
	defer s.inFlight.Done()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"active_tasks": s.activity.ActiveTasks(),
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodPost) {
		return
	}
	defer s.inFlight.Done()

	s.activity.Touch()
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodPost) {
		return
	}
	defer s.inFlight.Done()

	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	level := strings.ToUpper(req.Level)
	switch level {
	case "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL", "DISABLE":
	default:
		writeError(w, http.StatusBadRequest,
			"Invalid level. Must be one of: DEBUG, INFO, WARNING, ERROR, CRITICAL, DISABLE")
		return
	}

	s.logger.Info().Str("level", level).Msg("Log level changed")
	if s.applyLogLevel != nil {
		s.applyLogLevel(level)
	}

	message := fmt.Sprintf("Backend log level set to %s", level)
	if level == "DISABLE" {
		message = "Backend logging disabled"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"level":   level,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
