package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRuntimeDefaultsDerivesAllowlistPath(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{PublicDir: "./site/"}}

	derived, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, "site", cfg.Storage.PublicDir)
	require.Equal(t, filepath.Join("site", "auth.json"), cfg.Storage.AllowlistPath)
	require.Contains(t, derived, "storage.allowlist_path")
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestApplyRuntimeDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Storage:    StorageConfig{PublicDir: "public", AllowlistPath: "/etc/formgate/auth.json"},
		Export:     ExportConfig{Path: "out.xlsx"},
		Monitoring: MonitoringConfig{Prometheus: PrometheusConfig{Endpoint: "stats"}},
	}

	derived, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, derived)
	require.Equal(t, "/etc/formgate/auth.json", cfg.Storage.AllowlistPath)
	require.Equal(t, "out.xlsx", cfg.Export.Path)
	require.Equal(t, "/stats", cfg.Monitoring.Prometheus.Endpoint)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.Error(t, err)
}
