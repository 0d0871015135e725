package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formgate/internal/handlers/testutil"
)

type healthPayload struct {
	Success bool              `json:"success"`
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
}

func TestHealthLive(t *testing.T) {
	env := testutil.NewEnv(t, nil)

	w := env.Request(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var payload healthPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Equal(t, "up", payload.Status)
}

func TestHealthReady(t *testing.T) {
	env := testutil.NewEnv(t, []string{"a@b.com"})

	w := env.Request(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload healthPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "up", payload.Checks["database"])
	require.Equal(t, "up", payload.Checks["allowlist"])
}

func TestHealthReadyReportsBrokenAllowlist(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	env.WritePublicFile("auth.json", "[")

	w := env.Request(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var payload healthPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "down", payload.Checks["allowlist"])
	require.Equal(t, "up", payload.Checks["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t, []string{"a@b.com"})
	env.Request(http.MethodPost, "/submit", map[string]any{"name": "A", "age": 30, "email": "a@b.com"})

	w := env.Request(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "formgate_admissions_total")
}
