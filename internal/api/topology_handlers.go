// internal/api/topology_handlers.go
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netlens/internal/config"
	"netlens/internal/database"
	"netlens/internal/topology"
)

// TopologyHandler handles topology API endpoints
type TopologyHandler struct {
	db *database.DB
}

// NewTopologyHandler creates a new topology handler
func NewTopologyHandler(db *database.DB) *TopologyHandler {
	return &TopologyHandler{
		db: db,
	}
}

// RegisterRoutes registers the topology routes
func (h *TopologyHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/topology", h.getTopology).Methods("GET")
}

// getTopology builds the topology graph from all stored device records.
// Query flags: endpoints, hardware, collapse (each "true"/"false").
func (h *TopologyHandler) getTopology(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getTopology").Logger()

	records, err := h.db.GetAllRecords()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve device records")
		http.Error(w, "Failed to retrieve device records", http.StatusInternalServerError)
		return
	}

	// Layout parameters come from the topology configuration block; the query
	// flags override only the node-class toggles.
	cfg := config.GetConfig()
	opts := topology.Options{
		IncludeEndpoints: queryFlag(r, "endpoints", cfg.Topology.IncludeEndpoints),
		IncludeHardware:  queryFlag(r, "hardware", cfg.Topology.IncludeHardware),
		CollapseClusters: queryFlag(r, "collapse", true),
		CanvasWidth:      cfg.Topology.CanvasWidth,
		CanvasHeight:     cfg.Topology.CanvasHeight,
		Iterations:       cfg.Topology.Iterations,
		Seed:             cfg.Topology.Seed,
		ClusterFanOut:    cfg.Topology.ClusterFanOut,
	}

	graph := topology.Build(records, opts)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(graph); err != nil {
		logger.Error().Err(err).Msg("Failed to encode topology")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

func queryFlag(r *http.Request, name string, def bool) bool {
	switch r.URL.Query().Get(name) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
