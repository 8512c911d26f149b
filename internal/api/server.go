// Package api exposes the analysis job lifecycle over HTTP. The
// surface is deliberately thin: validation and rendering live here,
// all semantics live in the jobs service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/jobs"
	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

// ownerHeader identifies the caller. Authentication is out of scope;
// the deployment fronts this service with an authenticating proxy that
// sets the header.
const ownerHeader = "X-User-ID"

// Server serves the analysis API
type Server struct {
	server *http.Server
	jobs   *jobs.Service
}

// NewServer creates the API server
func NewServer(port string, svc *jobs.Service) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         ":" + port,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		jobs: svc,
	}

	mux.HandleFunc("POST /api/analyses", s.handleSubmit)
	mux.HandleFunc("GET /api/analyses", s.handleList)
	mux.HandleFunc("GET /api/analyses/{id}", s.handleGet)
	mux.HandleFunc("POST /api/analyses/{id}/cancel", s.handleCancel)

	return s
}

// Handler returns the mux, used by tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving requests until Stop is called
func (s *Server) Start() error {
	logger.Info("api server starting",
		zap.String("addr", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping api server")
	return s.server.Shutdown(ctx)
}

type submitRequest struct {
	Symbol       string `json:"symbol"`
	AnalysisType string `json:"analysis_type"`
	UserContext  string `json:"user_context,omitempty"`
	Timeframe    string `json:"timeframe,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.jobs.Submit(r.Context(), jobs.SubmitRequest{
		OwnerID:      owner,
		Symbol:       req.Symbol,
		AnalysisType: models.AnalysisType(req.AnalysisType),
		UserContext:  req.UserContext,
		Timeframe:    req.Timeframe,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"), ownerID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	list, err := s.jobs.List(r.Context(), ownerID(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []models.AnalysisJob{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": list})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.jobs.Cancel(r.Context(), id, ownerID(r)); err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, jobs.ErrTerminal):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to cancel job")
		}
		return
	}

	job, err := s.jobs.Get(r.Context(), id, ownerID(r))
	if err != nil || job == nil {
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func ownerID(r *http.Request) string {
	if owner := r.Header.Get(ownerHeader); owner != "" {
		return owner
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
