// internal/api/status_handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netlens/internal/database"
)

// Version is set at build time
var Version = "dev"

// StatusHandler handles service status endpoints
type StatusHandler struct {
	db        *database.DB
	startTime time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *database.DB) *StatusHandler {
	return &StatusHandler{
		db:        db,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/status", h.getStatus).Methods("GET")
	r.HandleFunc("/api/status/health", h.getHealth).Methods("GET")
	r.HandleFunc("/api/runs", h.getRuns).Methods("GET")
}

type statusResponse struct {
	Version string                  `json:"version"`
	Uptime  string                  `json:"uptime"`
	Stats   *database.DatabaseStats `json:"stats"`
}

// getStatus returns service version, uptime and database statistics
func (h *StatusHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getStatus").Logger()

	stats, err := h.db.GetDatabaseStats()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve database stats")
		http.Error(w, "Failed to retrieve database stats", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Version: Version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Stats:   stats,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode status")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// getHealth is a liveness probe
func (h *StatusHandler) getHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// getRuns returns recent analysis runs, newest first
func (h *StatusHandler) getRuns(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getRuns").Logger()

	runs, err := h.db.GetRuns(50)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve runs")
		http.Error(w, "Failed to retrieve runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*database.RunSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		logger.Error().Err(err).Msg("Failed to encode runs")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
