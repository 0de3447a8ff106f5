// Package database provides database operations for the netlens analyzer.
// It handles all interactions with the SQLite database including
// initialization, optimization, and CRUD operations for analysis runs,
// device records, and findings.
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netlens/internal/models"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	Path   string // Exported for integration tests
	logger *zerolog.Logger
	sync.Mutex
}

// New creates a new database connection
func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	logger := log.With().Str("component", "database").Logger()

	dbInstance := &DB{
		DB:     db,
		Path:   path,
		logger: &logger,
	}

	if err := dbInstance.initializeDB(); err != nil {
		db.Close()
		return nil, err
	}

	if err := dbInstance.optimizeDB(); err != nil {
		logger.Warn().Err(err).Msg("Failed to set some database optimization parameters")
	}

	return dbInstance, nil
}

// Initialize database schema
func (db *DB) initializeDB() error {
	db.logger.Info().Msg("Initializing database schema")

	schema := `
	-- Analysis runs table
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_uuid TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		source TEXT NOT NULL,
		duration INTEGER DEFAULT 0,
		files_total INTEGER DEFAULT 0,
		files_parsed INTEGER DEFAULT 0,
		files_failed INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT
	);

	-- Device records table; the full canonical record is stored as a JSON
	-- document alongside indexed identity columns
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		device_name TEXT,
		vendor TEXT,
		model TEXT,
		software_version TEXT,
		serial_number TEXT,
		management_ip TEXT,
		health_score INTEGER DEFAULT 100,
		record TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Findings table
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		subcategory TEXT,
		severity TEXT NOT NULL,
		description TEXT NOT NULL,
		remediation TEXT,
		vendor_specific BOOLEAN DEFAULT FALSE,
		FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
	);

	-- Create indexes
	CREATE INDEX IF NOT EXISTS idx_devices_run_id ON devices(run_id);
	CREATE INDEX IF NOT EXISTS idx_devices_name ON devices(device_name);
	CREATE INDEX IF NOT EXISTS idx_devices_vendor ON devices(vendor);
	CREATE INDEX IF NOT EXISTS idx_findings_device_id ON findings(device_id);
	CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

// optimizeDB sets SQLite optimization parameters
func (db *DB) optimizeDB() error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return err
	}
	return nil
}

// RunSummary describes one analysis run row
type RunSummary struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	Duration     int       `json:"duration"`
	FilesTotal   int       `json:"filesTotal"`
	FilesParsed  int       `json:"filesParsed"`
	FilesFailed  int       `json:"filesFailed"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// DeviceSummary describes one stored device record without its full document
type DeviceSummary struct {
	ID              int64     `json:"id"`
	RunID           int64     `json:"runId"`
	FileName        string    `json:"fileName"`
	DeviceName      string    `json:"deviceName"`
	Vendor          string    `json:"vendor"`
	Model           string    `json:"model,omitempty"`
	SoftwareVersion string    `json:"softwareVersion,omitempty"`
	ManagementIP    string    `json:"managementIp,omitempty"`
	HealthScore     int       `json:"healthScore"`
	FindingCount    int       `json:"findingCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CreateRun inserts a new analysis run in running state and returns its id
func (db *DB) CreateRun(uuid, source string) (int64, error) {
	db.Lock()
	defer db.Unlock()

	res, err := db.Exec(
		`INSERT INTO runs (run_uuid, timestamp, source, status) VALUES (?, ?, ?, 'running')`,
		uuid, time.Now(), source,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRun finalizes an analysis run row
func (db *DB) UpdateRun(id int64, status string, filesTotal, filesParsed, filesFailed int, duration time.Duration, errMsg string) error {
	db.Lock()
	defer db.Unlock()

	_, err := db.Exec(
		`UPDATE runs SET status = ?, files_total = ?, files_parsed = ?, files_failed = ?, duration = ?, error_message = ? WHERE id = ?`,
		status, filesTotal, filesParsed, filesFailed, int(duration.Seconds()), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", id, err)
	}
	return nil
}

// GetRuns returns analysis runs in reverse chronological order
func (db *DB) GetRuns(limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, run_uuid, timestamp, source, duration, files_total, files_parsed, files_failed, status, COALESCE(error_message, '')
		 FROM runs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunSummary
	for rows.Next() {
		r := &RunSummary{}
		if err := rows.Scan(&r.ID, &r.UUID, &r.Timestamp, &r.Source, &r.Duration,
			&r.FilesTotal, &r.FilesParsed, &r.FilesFailed, &r.Status, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveRecord stores a canonical device record and its findings, returning the
// assigned device id
func (db *DB) SaveRecord(runID int64, rec *models.DeviceRecord) (int64, error) {
	db.Lock()
	defer db.Unlock()

	doc, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record for %s: %w", rec.FileName, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO devices (run_id, file_name, device_name, vendor, model, software_version, serial_number, management_ip, health_score, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.FileName, rec.Identity(), string(rec.Vendor), rec.Model,
		rec.SoftwareVersion, rec.SerialNumber, rec.ManagementIP, rec.HealthScore,
		string(doc), time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert device record: %w", err)
	}
	deviceID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, f := range rec.Findings {
		if _, err := tx.Exec(
			`INSERT INTO findings (device_id, category, subcategory, severity, description, remediation, vendor_specific)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			deviceID, string(f.Category), f.Subcategory, string(f.Severity),
			f.Description, f.Remediation, f.VendorSpecific,
		); err != nil {
			return 0, fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit record: %w", err)
	}

	db.logger.Debug().
		Int64("deviceID", deviceID).
		Str("device", rec.Identity()).
		Int("findings", len(rec.Findings)).
		Msg("Saved device record")

	return deviceID, nil
}

// GetDeviceSummaries returns all stored device records without their documents
func (db *DB) GetDeviceSummaries() ([]*DeviceSummary, error) {
	rows, err := db.Query(
		`SELECT d.id, d.run_id, d.file_name, COALESCE(d.device_name, ''), COALESCE(d.vendor, ''),
		        COALESCE(d.model, ''), COALESCE(d.software_version, ''), COALESCE(d.management_ip, ''),
		        d.health_score, d.created_at,
		        (SELECT COUNT(*) FROM findings f WHERE f.device_id = d.id)
		 FROM devices d ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []*DeviceSummary
	for rows.Next() {
		s := &DeviceSummary{}
		if err := rows.Scan(&s.ID, &s.RunID, &s.FileName, &s.DeviceName, &s.Vendor,
			&s.Model, &s.SoftwareVersion, &s.ManagementIP, &s.HealthScore,
			&s.CreatedAt, &s.FindingCount); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRecord loads one full canonical record by device id
func (db *DB) GetRecord(id int64) (*models.DeviceRecord, error) {
	var doc string
	err := db.QueryRow(`SELECT record FROM devices WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("device %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device %d: %w", id, err)
	}

	rec := &models.DeviceRecord{}
	if err := json.Unmarshal([]byte(doc), rec); err != nil {
		return nil, fmt.Errorf("failed to decode record for device %d: %w", id, err)
	}
	rec.ID = id
	return rec, nil
}

// UpdateRecord rewrites the stored document and health score for a device,
// replacing its finding rows
func (db *DB) UpdateRecord(id int64, rec *models.DeviceRecord) error {
	db.Lock()
	defer db.Unlock()

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE devices SET record = ?, health_score = ? WHERE id = ?`,
		string(doc), rec.HealthScore, id); err != nil {
		return fmt.Errorf("failed to update device %d: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM findings WHERE device_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear findings for device %d: %w", id, err)
	}
	for _, f := range rec.Findings {
		if _, err := tx.Exec(
			`INSERT INTO findings (device_id, category, subcategory, severity, description, remediation, vendor_specific)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, string(f.Category), f.Subcategory, string(f.Severity),
			f.Description, f.Remediation, f.VendorSpecific,
		); err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	return tx.Commit()
}

// GetAllRecords loads every stored canonical record, newest first
func (db *DB) GetAllRecords() ([]*models.DeviceRecord, error) {
	rows, err := db.Query(`SELECT id, record FROM devices ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []*models.DeviceRecord
	for rows.Next() {
		var id int64
		var doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		rec := &models.DeviceRecord{}
		if err := json.Unmarshal([]byte(doc), rec); err != nil {
			db.logger.Warn().Err(err).Int64("deviceID", id).Msg("Skipping undecodable record")
			continue
		}
		rec.ID = id
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetFindings returns the findings stored for one device
func (db *DB) GetFindings(deviceID int64) ([]models.Finding, error) {
	rows, err := db.Query(
		`SELECT category, COALESCE(subcategory, ''), severity, description, COALESCE(remediation, ''), vendor_specific
		 FROM findings WHERE device_id = ?`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		var f models.Finding
		var cat, sev string
		if err := rows.Scan(&cat, &f.Subcategory, &sev, &f.Description, &f.Remediation, &f.VendorSpecific); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.Category = models.FindingCategory(cat)
		f.Severity = models.Severity(sev)
		out = append(out, f)
	}
	return out, rows.Err()
}

// DatabaseStats holds size and row-count statistics
type DatabaseStats struct {
	SizeBytes    int64 `json:"sizeBytes"`
	DeviceCount  int   `json:"deviceCount"`
	FindingCount int   `json:"findingCount"`
	RunCount     int   `json:"runCount"`
}

// GetDatabaseStats returns size and row-count statistics
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	if info, err := os.Stat(db.Path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&stats.DeviceCount); err != nil {
		return nil, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM findings`).Scan(&stats.FindingCount); err != nil {
		return nil, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&stats.RunCount); err != nil {
		return nil, err
	}
	return stats, nil
}

// OptimizeDatabase runs VACUUM and ANALYZE
func (db *DB) OptimizeDatabase() error {
	db.Lock()
	defer db.Unlock()

	db.logger.Info().Msg("Optimizing database")
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := db.Exec("ANALYZE"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	return nil
}
