// Package httpapi exposes the engine over HTTP with JSON bodies.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hurttlocker/vitae/internal/engine"
	"github.com/hurttlocker/vitae/internal/extract"
	"github.com/hurttlocker/vitae/internal/store"
)

// Server routes HTTP requests to engine operations.
type Server struct {
	engine *engine.Engine
}

// NewServer wraps an engine.
func NewServer(e *engine.Engine) *Server {
	return &Server{engine: e}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.HandleFunc("POST /replace", s.handleReplace)
	mux.HandleFunc("GET /resume", s.handleResume)
	mux.HandleFunc("GET /resume/summary", s.handleSummary)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req engine.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.engine.Update(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type replaceRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.engine.Replace(r.Context(), req.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Resume(r.Context()))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Summary(r.Context()))
}

type generateRequest struct {
	JobDescription string `json:"job_description"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.engine.Generate(r.Context(), req.JobDescription)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeEngineError maps the error taxonomy onto status codes: caller
// mistakes are 400, upstream LLM failures 502, store failures 500.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	var xerr *extract.ExtractionError
	if errors.As(err, &xerr) {
		writeError(w, http.StatusBadGateway, xerr.Error())
		return
	}
	var serr *store.StoreError
	if errors.As(err, &serr) {
		writeError(w, http.StatusInternalServerError, serr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
