package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gorilla/mux"

	"netlens/internal/analysis"
	"netlens/internal/config"
	"netlens/internal/database"
	"netlens/internal/engine"
	"netlens/internal/models"
	"netlens/internal/topology"
)

func newTestServer(t *testing.T) (*mux.Router, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Analyzer.InputDir = t.TempDir()
	cfg.Analyzer.FilePatterns = []string{"*.cfg"}
	service := analysis.New(cfg, db, engine.NewArbitrator(engine.DefaultRegistry()))

	r := mux.NewRouter()
	NewRecordHandler(db).RegisterRoutes(r)
	NewAnalysisHandler(service).RegisterRoutes(r)
	NewTopologyHandler(db).RegisterRoutes(r)
	NewStatusHandler(db).RegisterRoutes(r)
	return r, db
}

func seedDevice(t *testing.T, db *database.DB) int64 {
	t.Helper()

	runID, err := db.CreateRun("uuid-test", "test")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	rec := models.NewDeviceRecord("core-r1.cfg")
	rec.DeviceName = "CORE-R1"
	rec.Vendor = models.VendorCisco
	idx := rec.UpsertInterface("GigabitEthernet0/1", models.InterfacePhysical)
	rec.Interfaces[idx].RawLines = []string{"description uplink", "ip http server"}
	rec.Findings = []models.Finding{
		{
			Category:    models.CategorySecurity,
			Subcategory: "credentials",
			Severity:    models.SeverityHigh,
			Description: "weak user",
		},
	}
	rec.HealthScore = 85

	id, err := db.SaveRecord(runID, rec)
	if err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	return id
}

func doRequest(t *testing.T, r *mux.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetDevicesEmpty(t *testing.T) {
	r, _ := newTestServer(t)

	w := doRequest(t, r, "GET", "/api/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var devices []*database.DeviceSummary
	if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if devices == nil || len(devices) != 0 {
		t.Errorf("expected empty array, got %v", devices)
	}
}

func TestGetDevices(t *testing.T) {
	r, db := newTestServer(t)
	seedDevice(t, db)

	w := doRequest(t, r, "GET", "/api/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var devices []*database.DeviceSummary
	if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceName != "CORE-R1" || devices[0].FindingCount != 1 {
		t.Errorf("unexpected devices: %+v", devices)
	}
}

func TestGetDeviceRecord(t *testing.T) {
	r, db := newTestServer(t)
	id := seedDevice(t, db)

	w := doRequest(t, r, "GET", "/api/devices/"+itoa(id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rec models.DeviceRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.DeviceName != "CORE-R1" || rec.HealthScore != 85 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestGetDeviceRecordNotFound(t *testing.T) {
	r, _ := newTestServer(t)

	w := doRequest(t, r, "GET", "/api/devices/9999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetDeviceFindings(t *testing.T) {
	r, db := newTestServer(t)
	id := seedDevice(t, db)

	w := doRequest(t, r, "GET", "/api/devices/"+itoa(id)+"/findings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var findings []models.Finding
	if err := json.Unmarshal(w.Body.Bytes(), &findings); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(findings) != 1 || findings[0].Severity != models.SeverityHigh {
		t.Errorf("unexpected findings: %+v", findings)
	}
}

func TestSearchDeviceRecord(t *testing.T) {
	r, db := newTestServer(t)
	id := seedDevice(t, db)

	body, _ := json.Marshal(map[string]interface{}{
		"patterns": []string{"ip http server"},
		"severity": "High",
	})
	w := doRequest(t, r, "POST", "/api/devices/"+itoa(id)+"/search", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var rec models.DeviceRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	found := false
	for _, f := range rec.Findings {
		if f.Category == models.CategorySearch {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a search finding in response: %+v", rec.Findings)
	}

	// The augmented record must be persisted, not just returned.
	stored, err := db.GetRecord(id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if len(stored.Findings) != len(rec.Findings) {
		t.Errorf("stored %d findings, response had %d", len(stored.Findings), len(rec.Findings))
	}
}

func TestSearchDeviceRecordValidation(t *testing.T) {
	r, db := newTestServer(t)
	id := seedDevice(t, db)

	body, _ := json.Marshal(map[string]interface{}{"patterns": []string{}})
	w := doRequest(t, r, "POST", "/api/devices/"+itoa(id)+"/search", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty patterns, got %d", w.Code)
	}

	w = doRequest(t, r, "POST", "/api/devices/"+itoa(id)+"/search", []byte("{not json"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestAnalysisStatusEndpoint(t *testing.T) {
	r, _ := newTestServer(t)

	w := doRequest(t, r, "GET", "/api/analysis/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats analysis.RunStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.Status != "idle" {
		t.Errorf("expected idle status, got %q", stats.Status)
	}
}

func TestCancelWithoutRun(t *testing.T) {
	r, _ := newTestServer(t)

	w := doRequest(t, r, "DELETE", "/api/analysis", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 when nothing is running, got %d", w.Code)
	}
}

func TestGetTopology(t *testing.T) {
	r, db := newTestServer(t)
	seedDevice(t, db)

	w := doRequest(t, r, "GET", "/api/topology?endpoints=false&collapse=false", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var graph topology.Graph
	if err := json.Unmarshal(w.Body.Bytes(), &graph); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(graph.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(graph.Nodes))
	}
	if graph.Nodes[0].Label != "CORE-R1" {
		t.Errorf("unexpected node: %+v", graph.Nodes[0])
	}
}

func TestStatusEndpoint(t *testing.T) {
	r, db := newTestServer(t)
	seedDevice(t, db)

	w := doRequest(t, r, "GET", "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Version string                  `json:"version"`
		Uptime  string                  `json:"uptime"`
		Stats   *database.DatabaseStats `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != Version {
		t.Errorf("expected version %q, got %q", Version, resp.Version)
	}
	if resp.Stats == nil || resp.Stats.DeviceCount != 1 {
		t.Errorf("unexpected stats: %+v", resp.Stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestServer(t)

	w := doRequest(t, r, "GET", "/api/status/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestGetRunsEndpoint(t *testing.T) {
	r, db := newTestServer(t)
	seedDevice(t, db)

	w := doRequest(t, r, "GET", "/api/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var runs []*database.RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(runs) != 1 || runs[0].UUID != "uuid-test" {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
