package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestConfig() *Config {
	c := &Config{}
	setDefaults(c)
	return c
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := newTestConfig()

	if c.Server.Port != 8080 {
		t.Errorf("unexpected default port: %d", c.Server.Port)
	}
	if c.Analyzer.WorkerCap != 4 {
		t.Errorf("unexpected default worker cap: %d", c.Analyzer.WorkerCap)
	}
	if len(c.Analyzer.FilePatterns) != 4 {
		t.Errorf("unexpected default file patterns: %v", c.Analyzer.FilePatterns)
	}
	if c.Topology.Iterations != 300 || c.Topology.Seed != 1 {
		t.Errorf("unexpected topology defaults: %+v", c.Topology)
	}
	if c.Anomaly.CPUHighPercent != 80 || c.Anomaly.CPUCriticalPercent != 95 {
		t.Errorf("unexpected anomaly defaults: %+v", c.Anomaly)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db", "netlens.db")
	path := writeConfigFile(t, `
server:
  port: 9090
analyzer:
  workerCap: 2
  persistRecords: false
database:
  path: "`+dbPath+`"
`)

	c := newTestConfig()
	if err := c.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if c.Server.Port != 9090 {
		t.Errorf("expected port override, got %d", c.Server.Port)
	}
	if c.Analyzer.WorkerCap != 2 {
		t.Errorf("expected worker cap override, got %d", c.Analyzer.WorkerCap)
	}
	if c.Analyzer.PersistRecords {
		t.Error("expected persistRecords override to false")
	}
	// Unspecified values keep their defaults.
	if c.Server.ReadTimeout != 30 {
		t.Errorf("expected default read timeout preserved, got %d", c.Server.ReadTimeout)
	}
	// The database directory is created on load.
	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Errorf("expected database directory created: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	c := newTestConfig()
	if err := c.LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"zero workers", func(c *Config) { c.Analyzer.WorkerCap = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero iterations", func(c *Config) { c.Topology.Iterations = 0 }},
		{"inverted cpu thresholds", func(c *Config) {
			c.Anomaly.CPUHighPercent = 96
			c.Anomaly.CPUCriticalPercent = 95
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestConfig()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestReloadRequiresPriorLoad(t *testing.T) {
	c := newTestConfig()
	if err := c.Reload(); err == nil {
		t.Error("expected error reloading a config never loaded from a file")
	}
}
