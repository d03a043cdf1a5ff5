// Package kernel exposes the orchestration core over HTTP. It is a thin
// transport layer: validation and JSON shaping only, no retrieval or
// planning logic.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/lectern-ai/lectern/internal/core/domain"
	"github.com/lectern-ai/lectern/internal/core/ports"
)

// AskRunner is the minimal interface the server needs from the orchestrator.
type AskRunner interface {
	Run(ctx context.Context, question string, topK int) (*domain.RAGState, error)
}

// Config holds the server configuration.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	DefaultTopK    int
}

// Server is the HTTP kernel server.
type Server struct {
	logger *slog.Logger
	agent  AskRunner
	traces ports.TraceRepository // nil disables the trace endpoints
	cfg    Config
	server *http.Server
}

// NewServer wires the routes and middleware.
func NewServer(logger *slog.Logger, agent AskRunner, traces ports.TraceRepository, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 4
	}

	s := &Server{
		logger: logger,
		agent:  agent,
		traces: traces,
		cfg:    cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /api/traces", s.handleListTraces)
	mux.HandleFunc("GET /api/traces/{id}", s.handleGetTrace)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("kernel server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("kernel server error: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type askResponse struct {
	Answer   string           `json:"answer"`
	Passages []domain.Passage `json:"passages"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.DefaultTopK
	}

	state, err := s.agent.Run(r.Context(), req.Question, req.TopK)
	if err != nil {
		s.logger.Error("run failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to answer the question")
		return
	}

	passages := state.Passages
	if passages == nil {
		passages = []domain.Passage{}
	}
	s.writeJSON(w, http.StatusOK, askResponse{Answer: state.Answer, Passages: passages})
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	if s.traces == nil {
		s.writeError(w, http.StatusNotFound, "tracing is disabled")
		return
	}
	summaries, err := s.traces.ListTraces(r.Context(), 50)
	if err != nil {
		s.logger.Error("list traces failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list traces")
		return
	}
	if summaries == nil {
		summaries = []domain.TraceSummary{}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	if s.traces == nil {
		s.writeError(w, http.StatusNotFound, "tracing is disabled")
		return
	}
	trace, err := s.traces.GetTrace(r.Context(), domain.TraceID(r.PathValue("id")))
	if err != nil {
		s.logger.Error("get trace failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load trace")
		return
	}
	if trace == nil {
		s.writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	s.writeJSON(w, http.StatusOK, trace)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
