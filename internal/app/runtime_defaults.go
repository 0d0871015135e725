package app

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AllowlistFileName is the allowlist file expected inside the public directory.
const AllowlistFileName = "auth.json"

// ApplyRuntimeDefaults fills in paths derived from other settings and cleans the rest.
// It returns the keys that were derived so callers can log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	derived := make(map[string]string)

	publicDir := strings.TrimSpace(cfg.Storage.PublicDir)
	if publicDir == "" {
		publicDir = "./public"
		derived["storage.public_dir"] = publicDir
	}
	cfg.Storage.PublicDir = filepath.Clean(publicDir)

	if strings.TrimSpace(cfg.Storage.AllowlistPath) == "" {
		cfg.Storage.AllowlistPath = filepath.Join(cfg.Storage.PublicDir, AllowlistFileName)
		derived["storage.allowlist_path"] = cfg.Storage.AllowlistPath
	} else {
		cfg.Storage.AllowlistPath = filepath.Clean(strings.TrimSpace(cfg.Storage.AllowlistPath))
	}

	if strings.TrimSpace(cfg.Export.Path) == "" {
		cfg.Export.Path = filepath.Join("data", "submissions_export.xlsx")
		derived["export.path"] = cfg.Export.Path
	}

	if strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint) == "" {
		cfg.Monitoring.Prometheus.Endpoint = "/metrics"
		derived["monitoring.prometheus.endpoint"] = cfg.Monitoring.Prometheus.Endpoint
	}
	if !strings.HasPrefix(cfg.Monitoring.Prometheus.Endpoint, "/") {
		cfg.Monitoring.Prometheus.Endpoint = "/" + cfg.Monitoring.Prometheus.Endpoint
	}

	return derived, nil
}
