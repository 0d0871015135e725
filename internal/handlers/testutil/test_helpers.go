package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formgate/internal/allowlist"
	"github.com/charlesng35/formgate/internal/api"
	"github.com/charlesng35/formgate/internal/app"
	sharedtestutil "github.com/charlesng35/formgate/internal/database/testutil"
	"github.com/charlesng35/formgate/internal/locks"
	"github.com/charlesng35/formgate/internal/services"
	"github.com/charlesng35/formgate/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an isolated database, public
// directory and allowlist file.
type Env struct {
	T          *testing.T
	Config     *app.Config
	Router     *gin.Engine
	Records    *services.SubmissionStore
	Allowlist  *allowlist.FileStore
	Admissions *services.AdmissionService
	PublicDir  string
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit overrides the submission rate limit.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with the given allowlist tokens.
func NewEnv(t *testing.T, tokens []string, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	publicDir := filepath.Join(t.TempDir(), "public")
	require.NoError(t, os.MkdirAll(publicDir, 0o755))

	cfg := &app.Config{
		Storage:    app.StorageConfig{PublicDir: publicDir},
		Monitoring: app.MonitoringConfig{Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	_, err := app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	list, err := allowlist.NewFileStore(cfg.Storage.AllowlistPath)
	require.NoError(t, err)
	if tokens != nil {
		require.NoError(t, list.Save(context.Background(), tokens))
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	records, err := services.NewSubmissionStore(db)
	require.NoError(t, err)

	locker, err := locks.NewFileLocker(locks.SidecarPath(cfg.Storage.AllowlistPath))
	require.NoError(t, err)

	admissions, err := services.NewAdmissionService(list, records, locker)
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, api.Dependencies{
		Admissions: admissions,
		Records:    records,
		Allowlist:  list,
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		Config:     cfg,
		Router:     router,
		Records:    records,
		Allowlist:  list,
		Admissions: admissions,
		PublicDir:  publicDir,
	}
}

// WritePublicFile creates a file below the public directory.
func (e *Env) WritePublicFile(name, content string) {
	e.T.Helper()
	path := filepath.Join(e.PublicDir, filepath.FromSlash(name))
	require.NoError(e.T, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.T, os.WriteFile(path, []byte(content), 0o644))
}

// Tokens returns the current allowlist contents.
func (e *Env) Tokens() []string {
	e.T.Helper()
	tokens, err := e.Allowlist.Load(context.Background())
	require.NoError(e.T, err)
	return tokens
}

// RecordCount returns the number of stored submissions.
func (e *Env) RecordCount() int64 {
	e.T.Helper()
	count, err := e.Records.Count(context.Background())
	require.NoError(e.T, err)
	return count
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router. Non-nil bodies are JSON
// encoded unless they are already a string.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(e.T, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
