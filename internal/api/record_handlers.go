// internal/api/record_handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netlens/internal/anomaly"
	"netlens/internal/database"
	"netlens/internal/models"
)

// RecordHandler handles device-record API endpoints
type RecordHandler struct {
	db *database.DB
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(db *database.DB) *RecordHandler {
	return &RecordHandler{
		db: db,
	}
}

// RegisterRoutes registers the device-record routes
func (h *RecordHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/devices", h.getDevices).Methods("GET")
	r.HandleFunc("/api/devices/{id:[0-9]+}", h.getDeviceRecord).Methods("GET")
	r.HandleFunc("/api/devices/{id:[0-9]+}/findings", h.getDeviceFindings).Methods("GET")
	r.HandleFunc("/api/devices/{id:[0-9]+}/search", h.searchDeviceRecord).Methods("POST")
}

// getDevices returns summaries of all stored device records
func (h *RecordHandler) getDevices(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDevices").Logger()

	devices, err := h.db.GetDeviceSummaries()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve devices")
		http.Error(w, "Failed to retrieve devices", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []*database.DeviceSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(devices); err != nil {
		logger.Error().Err(err).Msg("Failed to encode devices")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// getDeviceRecord returns the full canonical record for one device
func (h *RecordHandler) getDeviceRecord(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDeviceRecord").Logger()

	id, err := parseID(r)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid device ID")
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	rec, err := h.db.GetRecord(id)
	if err != nil {
		logger.Error().Err(err).Int64("id", id).Msg("Failed to retrieve device record")
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		logger.Error().Err(err).Msg("Failed to encode device record")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// getDeviceFindings returns the findings stored for one device
func (h *RecordHandler) getDeviceFindings(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDeviceFindings").Logger()

	id, err := parseID(r)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid device ID")
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	findings, err := h.db.GetFindings(id)
	if err != nil {
		logger.Error().Err(err).Int64("id", id).Msg("Failed to retrieve findings")
		http.Error(w, "Failed to retrieve findings", http.StatusInternalServerError)
		return
	}
	if findings == nil {
		findings = []models.Finding{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(findings); err != nil {
		logger.Error().Err(err).Msg("Failed to encode findings")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// searchRequest is the payload for pattern-search augmentation
type searchRequest struct {
	Patterns []string        `json:"patterns"`
	UseRegex bool            `json:"useRegex"`
	Severity models.Severity `json:"severity"`
}

// searchDeviceRecord runs pattern-search augmentation over one stored record,
// persisting the augmented findings and recomputed health score
func (h *RecordHandler) searchDeviceRecord(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "searchDeviceRecord").Logger()

	id, err := parseID(r)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid device ID")
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Invalid search request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Patterns) == 0 {
		http.Error(w, "At least one pattern is required", http.StatusBadRequest)
		return
	}
	if req.Severity == "" {
		req.Severity = models.SeverityLow
	}

	rec, err := h.db.GetRecord(id)
	if err != nil {
		logger.Error().Err(err).Int64("id", id).Msg("Failed to retrieve device record")
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	if err := anomaly.Search(rec, req.Patterns, req.UseRegex, req.Severity); err != nil {
		logger.Error().Err(err).Msg("Pattern search failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.UpdateRecord(id, rec); err != nil {
		logger.Error().Err(err).Int64("id", id).Msg("Failed to persist search results")
		http.Error(w, "Failed to persist search results", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		logger.Error().Err(err).Msg("Failed to encode search response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
