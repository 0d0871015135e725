package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"export", "inspect", "allowlist"})
}

func TestRootCommandMissingConfig(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "inspect"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExecuteReturnsExitCode(t *testing.T) {
	env := newCLIEnv(t)

	assert.Equal(t, ExitSuccess, Execute(context.Background(), []string{"--config", env.configPath, "allowlist", "list"}))
	assert.Equal(t, ExitCommandError, Execute(context.Background(), []string{"--config", env.configPath, "inspect", "--format", "xml"}))
}
