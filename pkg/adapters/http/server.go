package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/internal/presentation/graph"
	"github.com/aretw0/autoflow/internal/validator"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	maxWorkflowBytes = 1 << 20
)

// Engine defines the AutoFlow operations exposed over HTTP.
type Engine interface {
	List(ctx context.Context) ([]domain.WorkflowSummary, error)
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error)
	Update(ctx context.Context, id string, wf *domain.Workflow) (*domain.Workflow, error)
	Delete(ctx context.Context, id string) error
	RunOnce(ctx context.Context, id string, seed map[string]any) (string, error)
	Receive(ctx context.Context, id string, payload map[string]any) (string, error)
	Activate(ctx context.Context, id string) (*scheduler.Activation, error)
	Deactivate(ctx context.Context, id string) error
	IsActive(id string) bool
	Runs(ctx context.Context, id string, limit int) ([]domain.RunRecord, error)
}

// Server holds the handlers of the REST API and the inbound event gateway.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger        *slog.Logger
	metrics       http.Handler
	maxEventBytes int64
	maxInputSize  int
	version       string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler exposes h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a stream manager whose hooks are registered on the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMaxEventBytes bounds the body of inbound events.
func WithMaxEventBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxEventBytes = n
		}
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:        engine,
		logger:        logging.NewNop(),
		maxEventBytes: DefaultMaxEventBytes,
		maxInputSize:  DefaultMaxInputSize,
		version:       "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/workflows", func(r chi.Router) {
		r.Get("/", s.ListWorkflows)
		r.Post("/", s.CreateWorkflow)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetWorkflow)
			r.Put("/", s.ReplaceWorkflow)
			r.Delete("/", s.DeleteWorkflow)
			r.Post("/run", s.RunWorkflow)
			r.Post("/activate", s.ActivateWorkflow)
			r.Post("/deactivate", s.DeactivateWorkflow)
			r.Post("/events", s.ReceiveEvent)
			r.Get("/runs", s.ListRuns)
			r.Get("/graph", s.GetGraph)
			r.Get("/stream", s.SubscribeEvents)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
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
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// -- Responses --

type workflowResponse struct {
	*domain.Workflow
	Active   bool                `json:"active"`
	Warnings []validator.Warning `json:"warnings,omitempty"`
}

type summaryResponse struct {
	domain.WorkflowSummary
	Active bool `json:"active"`
}

type runAccepted struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

type activationResponse struct {
	WorkflowID  string     `json:"workflow_id"`
	Active      bool       `json:"active"`
	Schedule    string     `json:"schedule,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	Noop        bool       `json:"noop,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// -- Handlers --

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":          "autoflow",
		"version":      strings.TrimSpace(s.version),
		"capabilities": domain.Capabilities(),
	})
}

// ListWorkflows handles GET /api/workflows.
func (s *Server) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]summaryResponse, 0, len(list))
	for _, sum := range list {
		resp = append(resp, summaryResponse{WorkflowSummary: sum, Active: s.Engine.IsActive(sum.ID)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// CreateWorkflow handles POST /api/workflows.
func (s *Server) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := decodeWorkflow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.Engine.Create(r.Context(), wf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, workflowResponse{Workflow: stored, Warnings: validator.Lint(stored)})
}

// GetWorkflow handles GET /api/workflows/{id}.
func (s *Server) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := s.Engine.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, workflowResponse{Workflow: wf, Active: s.Engine.IsActive(id)})
}

// ReplaceWorkflow handles PUT /api/workflows/{id}.
func (s *Server) ReplaceWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := decodeWorkflow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.Engine.Update(r.Context(), id, wf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, workflowResponse{
		Workflow: stored,
		Active:   s.Engine.IsActive(id),
		Warnings: validator.Lint(stored),
	})
}

// DeleteWorkflow handles DELETE /api/workflows/{id}.
func (s *Server) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunWorkflow handles POST /api/workflows/{id}/run.
// An optional JSON object body seeds the execution context.
func (s *Server) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	seed, err := s.decodePayload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runID, err := s.Engine.RunOnce(r.Context(), id, seed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, runAccepted{RunID: runID, WorkflowID: id, Status: "accepted"})
}

// ReceiveEvent handles POST /api/workflows/{id}/events, the inbound trigger gateway.
func (s *Server) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	payload, err := s.decodePayload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runID, err := s.Engine.Receive(r.Context(), id, payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("inbound event accepted", "workflow_id", id, "run_id", runID, "fields", len(payload))
	s.writeJSON(w, http.StatusAccepted, runAccepted{RunID: runID, WorkflowID: id, Status: "accepted"})
}

// ActivateWorkflow handles POST /api/workflows/{id}/activate.
func (s *Server) ActivateWorkflow(w http.ResponseWriter, r *http.Request) {
	act, err := s.Engine.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, activationResponse{
		WorkflowID:  act.WorkflowID,
		Active:      true,
		Schedule:    act.Schedule,
		ActivatedAt: &act.ActivatedAt,
	})
}

// DeactivateWorkflow handles POST /api/workflows/{id}/deactivate.
// Deactivating an inactive workflow is a successful no-op.
func (s *Server) DeactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.Engine.Deactivate(r.Context(), id)
	if err != nil && !errors.Is(err, domain.ErrNotActive) {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, activationResponse{WorkflowID: id, Noop: err != nil})
}

// ListRuns handles GET /api/workflows/{id}/runs?limit=N.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("limit must be between 1 and %d", maxRunsLimit)})
			return
		}
		limit = n
	}

	if _, err := s.Engine.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, err := s.Engine.Runs(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// GetGraph handles GET /api/workflows/{id}/graph?run=RUN_ID.
// It returns a Mermaid flowchart, optionally overlaid with the outcomes of a recorded run.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := s.Engine.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var overlay *graph.GraphOverlay
	if runID := r.URL.Query().Get("run"); runID != "" {
		runs, err := s.Engine.Runs(r.Context(), id, maxRunsLimit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		for _, rec := range runs {
			if rec.RunID == runID {
				overlay = graph.OverlayFromOutcomes(rec.Outcomes)
				break
			}
		}
		if overlay == nil {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("run %q not found", runID)})
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(wf, overlay))
}

// SubscribeEvents handles GET /api/workflows/{id}/stream (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.Engine.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()
	s.logger.Info("SSE: subscribing to workflow events", "workflow_id", id)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "workflow_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

var errBadRequest = errors.New("bad request")

func decodeWorkflow(r *http.Request) (*domain.Workflow, error) {
	var wf domain.Workflow
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWorkflowBytes))
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("%w: invalid workflow body: %v", errBadRequest, err)
	}
	return &wf, nil
}

// decodePayload reads an optional JSON object body, bounded and sanitized.
func (s *Server) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxEventBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: %w: limit=%d", errBadRequest, ErrInputTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object: %v", errBadRequest, err)
	}
	clean, err := SanitizePayload(payload, s.maxInputSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return clean, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidWorkflow), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrWriteConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrEngineClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
