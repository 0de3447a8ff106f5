// Package config manages the netlens application configuration. It handles
// loading, validating, and providing access to configuration settings from
// YAML files. It includes defaults for all settings and implements
// thread-safe access to configuration values.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		Host            string   `yaml:"host"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		ReadTimeout     int      `yaml:"readTimeout"`
		WriteTimeout    int      `yaml:"writeTimeout"`
		ShutdownTimeout int      `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Analyzer struct {
		InputDir       string   `yaml:"inputDir"`
		FilePatterns   []string `yaml:"filePatterns"`
		WorkerCap      int      `yaml:"workerCap"`
		SamplePrefixKB int      `yaml:"samplePrefixKB"`
		PersistRecords bool     `yaml:"persistRecords"`
	} `yaml:"analyzer"`

	Anomaly struct {
		CPUHighPercent      float64 `yaml:"cpuHighPercent"`
		CPUCriticalPercent  float64 `yaml:"cpuCriticalPercent"`
		MemHighPercent      float64 `yaml:"memHighPercent"`
		MemCriticalPercent  float64 `yaml:"memCriticalPercent"`
		DiskHighPercent     float64 `yaml:"diskHighPercent"`
		DiskCriticalPercent float64 `yaml:"diskCriticalPercent"`
		ErrorsHigh          int64   `yaml:"errorsHigh"`
		ErrorsCritical      int64   `yaml:"errorsCritical"`
		UtilizationHigh     float64 `yaml:"utilizationHigh"`
		UtilizationCritical float64 `yaml:"utilizationCritical"`
	} `yaml:"anomaly"`

	Topology struct {
		CanvasWidth      float64 `yaml:"canvasWidth"`
		CanvasHeight     float64 `yaml:"canvasHeight"`
		Iterations       int     `yaml:"iterations"`
		Seed             int64   `yaml:"seed"`
		ClusterFanOut    int     `yaml:"clusterFanOut"`
		IncludeEndpoints bool    `yaml:"includeEndpoints"`
		IncludeHardware  bool    `yaml:"includeHardware"`
	} `yaml:"topology"`

	Database struct {
		Path            string `yaml:"path"`
		JournalMode     string `yaml:"journalMode"`
		SynchronousMode string `yaml:"synchronousMode"`
	} `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	path string
	mu   sync.RWMutex
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		instance = &Config{}
		setDefaults(instance)
	})
	return instance
}

// LoadConfig loads configuration from a YAML file
func (c *Config) LoadConfig(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Save path for potential reloading
	c.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", path)
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if dir := filepath.Dir(c.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("path", path).Msg("Configuration loaded successfully")
	return nil
}

// Reload reloads the configuration from the file
func (c *Config) Reload() error {
	if c.path == "" {
		return errors.New("configuration was not loaded from a file")
	}
	return c.LoadConfig(c.path)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Analyzer.WorkerCap <= 0 {
		return fmt.Errorf("invalid worker cap: %d", c.Analyzer.WorkerCap)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Topology.Iterations <= 0 {
		return fmt.Errorf("invalid topology iteration count: %d", c.Topology.Iterations)
	}

	if c.Anomaly.CPUHighPercent >= c.Anomaly.CPUCriticalPercent {
		return fmt.Errorf("cpu high threshold %.0f must be below critical %.0f",
			c.Anomaly.CPUHighPercent, c.Anomaly.CPUCriticalPercent)
	}

	return nil
}

// setDefaults initializes the configuration with default values
func setDefaults(c *Config) {
	// Server defaults
	c.Server.Port = 8080
	c.Server.Host = "127.0.0.1"
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.ReadTimeout = 30
	c.Server.WriteTimeout = 30
	c.Server.ShutdownTimeout = 10

	// Analyzer defaults
	c.Analyzer.InputDir = "./data/input"
	c.Analyzer.FilePatterns = []string{"*.txt", "*.log", "*.cfg", "*.conf"}
	c.Analyzer.WorkerCap = 4
	c.Analyzer.SamplePrefixKB = 16
	c.Analyzer.PersistRecords = true

	// Anomaly defaults
	c.Anomaly.CPUHighPercent = 80
	c.Anomaly.CPUCriticalPercent = 95
	c.Anomaly.MemHighPercent = 80
	c.Anomaly.MemCriticalPercent = 95
	c.Anomaly.DiskHighPercent = 90
	c.Anomaly.DiskCriticalPercent = 95
	c.Anomaly.ErrorsHigh = 100
	c.Anomaly.ErrorsCritical = 1000
	c.Anomaly.UtilizationHigh = 70
	c.Anomaly.UtilizationCritical = 90

	// Topology defaults
	c.Topology.CanvasWidth = 1000
	c.Topology.CanvasHeight = 1000
	c.Topology.Iterations = 300
	c.Topology.Seed = 1
	c.Topology.ClusterFanOut = 3
	c.Topology.IncludeEndpoints = true
	c.Topology.IncludeHardware = false

	// Database defaults
	c.Database.Path = "./data/netlens.db"
	c.Database.JournalMode = "WAL"
	c.Database.SynchronousMode = "NORMAL"

	// Logging defaults
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}
