// internal/api/analysis_handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netlens/internal/analysis"
)

// AnalysisHandler handles analysis-run API endpoints
type AnalysisHandler struct {
	service *analysis.Service
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service *analysis.Service) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
	}
}

// RegisterRoutes registers the analysis routes
func (h *AnalysisHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/analysis", h.startAnalysis).Methods("POST")
	r.HandleFunc("/api/analysis", h.cancelAnalysis).Methods("DELETE")
	r.HandleFunc("/api/analysis/status", h.getAnalysisStatus).Methods("GET")
}

// analysisRequest is the payload for starting a run. When Directory is
// empty the configured input directory is used.
type analysisRequest struct {
	Directory string   `json:"directory,omitempty"`
	Files     []string `json:"files,omitempty"`
}

// startAnalysis kicks off an analysis run in the background
func (h *AnalysisHandler) startAnalysis(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "startAnalysis").Logger()

	var req analysisRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error().Err(err).Msg("Invalid analysis request body")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if h.service.GetStatus().Status == "running" {
		http.Error(w, "Analysis already in progress", http.StatusConflict)
		return
	}

	go func() {
		ctx := context.Background()
		var err error
		if len(req.Files) > 0 {
			_, _, err = h.service.AnalyzeFiles(ctx, "api", req.Files)
		} else {
			_, _, err = h.service.AnalyzeDirectory(ctx, req.Directory)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Analysis run failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// cancelAnalysis requests cancellation of the in-flight run
func (h *AnalysisHandler) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "cancelAnalysis").Logger()

	if h.service.GetStatus().Status != "running" {
		http.Error(w, "No analysis in progress", http.StatusConflict)
		return
	}
	h.service.Cancel()
	logger.Info().Msg("Analysis cancellation requested")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelling"})
}

// getAnalysisStatus returns progress of the current or last run
func (h *AnalysisHandler) getAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getAnalysisStatus").Logger()

	status := h.service.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Error().Err(err).Msg("Failed to encode analysis status")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
