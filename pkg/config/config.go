// Package config loads server configuration from the environment with
// sensible defaults for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults.
const (
	DefaultPort        = 8000
	DefaultWorkerCount = 4
	DefaultCORSOrigins = "*"
)

// Config is the server's startup configuration.
type Config struct {
	// Port the HTTP server listens on (HTTP_PORT).
	Port int
	// WorkerCount sizes the job worker pool (WORKER_COUNT).
	WorkerCount int
	// AdminKey and UserKey are plaintext API keys hashed at startup
	// (FORGESYTE_ADMIN_KEY, FORGESYTE_USER_KEY). Empty means unset.
	AdminKey string
	UserKey  string
	// PluginsDir holds plugin descriptor JSON files (FORGESYTE_PLUGINS_DIR).
	PluginsDir string
	// PipelinesDir holds pipeline descriptor JSON files
	// (FORGESYTE_PIPELINES_DIR).
	PipelinesDir string
	// CORSOrigins is the comma-separated allow list (CORS_ORIGINS).
	CORSOrigins string
	// StrictAudit makes the startup plugin audit fatal
	// (PHASE11_STRICT_AUDIT).
	StrictAudit bool
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         DefaultPort,
		WorkerCount:  DefaultWorkerCount,
		AdminKey:     os.Getenv("FORGESYTE_ADMIN_KEY"),
		UserKey:      os.Getenv("FORGESYTE_USER_KEY"),
		PluginsDir:   os.Getenv("FORGESYTE_PLUGINS_DIR"),
		PipelinesDir: os.Getenv("FORGESYTE_PIPELINES_DIR"),
		CORSOrigins:  getEnv("CORS_ORIGINS", DefaultCORSOrigins),
		StrictAudit:  getBoolEnv("PHASE11_STRICT_AUDIT"),
	}

	var err error
	if cfg.Port, err = getIntEnv("HTTP_PORT", DefaultPort); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = getIntEnv("WORKER_COUNT", DefaultWorkerCount); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("invalid worker count %d", c.WorkerCount)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getBoolEnv(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true" || v == "yes"
}
