package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formgate/internal/app"
	"github.com/charlesng35/formgate/internal/models"
)

type cliEnv struct {
	dir        string
	configPath string
	allowlist  string
	dbPath     string
	exportPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		allowlist:  filepath.Join(dir, "public", "auth.json"),
		dbPath:     filepath.Join(dir, "data", "submissions.db"),
		exportPath: filepath.Join(dir, "data", "export.xlsx"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "public"), 0o755))

	config := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
storage:
  public_dir: %s
export:
  path: %s
maintenance:
  reconcile:
    enabled: false
`, env.dbPath, filepath.Join(dir, "public"), env.exportPath)
	require.NoError(t, os.WriteFile(env.configPath, []byte(config), 0o644))
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) writeAllowlist(t *testing.T, tokens ...string) {
	t.Helper()
	data, err := json.Marshal(tokens)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.allowlist, data, 0o644))
}

func (e *cliEnv) readAllowlist(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(e.allowlist)
	require.NoError(t, err)
	var tokens []string
	require.NoError(t, json.Unmarshal(data, &tokens))
	return tokens
}

func (e *cliEnv) seed(t *testing.T, records ...models.Submission) {
	t.Helper()

	cfg, err := app.LoadConfig(e.configPath)
	require.NoError(t, err)
	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	stores, err := app.OpenStores(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer stores.Close()

	for i := range records {
		require.NoError(t, stores.Records.Insert(context.Background(), &records[i]))
	}
}
